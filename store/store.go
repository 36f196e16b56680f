// Package store - archive of interpreted configuration documents.
//
// Documents are keyed by their semantic fingerprint, so two encodings of
// the same configuration occupy one archive slot no matter how they were
// formatted on disk.
package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/nvr-ai/go-detcfg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	fingerprint  TEXT PRIMARY KEY,
	architecture TEXT NOT NULL,
	metric       TEXT NOT NULL,
	num_classes  INTEGER NOT NULL,
	format       TEXT NOT NULL,
	document     BLOB NOT NULL,
	added_at     TEXT NOT NULL
);
`

// ErrNotFound is returned when no archived document matches.
var ErrNotFound = errors.New("document not found")

// ErrAmbiguous is returned when a fingerprint prefix matches more than
// one archived document.
var ErrAmbiguous = errors.New("fingerprint prefix matches more than one document")

// Record is one archived document.
type Record struct {
	// Fingerprint is the document's semantic fingerprint in hex.
	Fingerprint string
	// Architecture is the document's root section name.
	Architecture string
	// Metric is the document's evaluation protocol.
	Metric string
	// NumClasses is the document's class count.
	NumClasses int
	// Format is the encoding the document was archived in.
	Format config.Format
	// Document is the raw document as it was archived. List leaves it
	// empty.
	Document []byte
	// AddedAt is when the document entered the archive, in UTC.
	AddedAt time.Time
}

// Store archives documents in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the archive at path, creating it on first use. The path
// ":memory:" opens a throwaway in-memory archive.
//
// Arguments:
// - path: SQLite database path.
//
// Returns:
// - *Store: The opened archive.
// - error: Error if the database cannot be opened or migrated.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}
	if path == ":memory:" {
		// A pooled second connection would see its own empty memory
		// database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, errors.Wrap(err, "set journal mode")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "migrate archive")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put archives a document. Archiving the same fingerprint twice is a
// no-op, so re-archiving a reformatted copy of a known document never
// duplicates it.
//
// Arguments:
// - rec: The record to archive. AddedAt is stamped here.
//
// Returns:
// - bool: True if the document was new to the archive.
// - error: Error if the insert fails.
func (s *Store) Put(rec Record) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO documents (fingerprint, architecture, metric, num_classes, format, document, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO NOTHING`,
		rec.Fingerprint, rec.Architecture, rec.Metric, rec.NumClasses,
		string(rec.Format), rec.Document, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, errors.Wrap(err, "archive document")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "archive document")
	}
	return n > 0, nil
}

// Get retrieves an archived document by fingerprint or unique prefix.
//
// Arguments:
// - prefix: Full fingerprint or a leading slice of it.
//
// Returns:
// - Record: The archived document, body included.
// - error: ErrNotFound if nothing matches, ErrAmbiguous if the prefix
//   is not unique.
func (s *Store) Get(prefix string) (Record, error) {
	if prefix == "" {
		return Record{}, errors.New("empty fingerprint prefix")
	}
	rows, err := s.db.Query(
		`SELECT fingerprint, architecture, metric, num_classes, format, document, added_at
		 FROM documents WHERE substr(fingerprint, 1, length(?1)) = ?1 LIMIT 2`,
		prefix,
	)
	if err != nil {
		return Record{}, errors.Wrap(err, "query archive")
	}
	defer rows.Close()

	var matches []Record
	for rows.Next() {
		rec, err := scanRecord(rows, true)
		if err != nil {
			return Record{}, err
		}
		matches = append(matches, rec)
	}
	if err := rows.Err(); err != nil {
		return Record{}, errors.Wrap(err, "query archive")
	}
	switch len(matches) {
	case 0:
		return Record{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return Record{}, ErrAmbiguous
	}
}

// List returns every archived document, newest first, without bodies.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT fingerprint, architecture, metric, num_classes, format, added_at
		 FROM documents ORDER BY added_at DESC, fingerprint`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list archive")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows, false)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "list archive")
}

// Delete removes an archived document by fingerprint or unique prefix.
//
// Returns ErrNotFound if nothing matches and ErrAmbiguous if the
// prefix is not unique.
func (s *Store) Delete(prefix string) error {
	rec, err := s.Get(prefix)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM documents WHERE fingerprint = ?`, rec.Fingerprint)
	return errors.Wrap(err, "delete document")
}

func scanRecord(rows *sql.Rows, withBody bool) (Record, error) {
	var rec Record
	var format string
	var added string

	var err error
	if withBody {
		err = rows.Scan(&rec.Fingerprint, &rec.Architecture, &rec.Metric,
			&rec.NumClasses, &format, &rec.Document, &added)
	} else {
		err = rows.Scan(&rec.Fingerprint, &rec.Architecture, &rec.Metric,
			&rec.NumClasses, &format, &added)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "scan record")
	}
	rec.Format = config.Format(format)
	rec.AddedAt, err = time.Parse(time.RFC3339Nano, added)
	if err != nil {
		return Record{}, errors.Wrap(err, "parse added_at")
	}
	return rec, nil
}
