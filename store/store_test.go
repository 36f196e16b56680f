package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detcfg/config"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(fingerprint string) Record {
	return Record{
		Fingerprint:  fingerprint,
		Architecture: "YOLOv3",
		Metric:       "VOC",
		NumClasses:   20,
		Format:       config.FormatYAML,
		Document:     []byte("architecture: YOLOv3\n"),
	}
}

// TestPutAndGet verifies the basic archive round trip.
func TestPutAndGet(t *testing.T) {
	s := tempStore(t)

	added, err := s.Put(sampleRecord("aaaa1111"))
	require.NoError(t, err)
	assert.True(t, added)

	rec, err := s.Get("aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, "YOLOv3", rec.Architecture)
	assert.Equal(t, "VOC", rec.Metric)
	assert.Equal(t, 20, rec.NumClasses)
	assert.Equal(t, config.FormatYAML, rec.Format)
	assert.Equal(t, []byte("architecture: YOLOv3\n"), rec.Document)
	assert.False(t, rec.AddedAt.IsZero())
}

// TestPutIsIdempotent verifies that re-archiving a known fingerprint
// changes nothing.
func TestPutIsIdempotent(t *testing.T) {
	s := tempStore(t)

	added, err := s.Put(sampleRecord("aaaa1111"))
	require.NoError(t, err)
	assert.True(t, added)

	again := sampleRecord("aaaa1111")
	again.Document = []byte("reformatted: body\n")
	added, err = s.Put(again)
	require.NoError(t, err)
	assert.False(t, added, "second archive of the same fingerprint is a no-op")

	rec, err := s.Get("aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, []byte("architecture: YOLOv3\n"), rec.Document,
		"the first archived body wins")
}

// TestGetByPrefix verifies prefix lookup and its failure modes.
func TestGetByPrefix(t *testing.T) {
	s := tempStore(t)

	_, err := s.Put(sampleRecord("aaaa1111"))
	require.NoError(t, err)
	_, err = s.Put(sampleRecord("aabb2222"))
	require.NoError(t, err)

	rec, err := s.Get("aaaa")
	require.NoError(t, err)
	assert.Equal(t, "aaaa1111", rec.Fingerprint)

	_, err = s.Get("aa")
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = s.Get("ffff")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("")
	assert.Error(t, err)
}

// TestList verifies listing order and that bodies stay behind.
func TestList(t *testing.T) {
	s := tempStore(t)

	for _, fp := range []string{"cccc3333", "aaaa1111", "bbbb2222"} {
		_, err := s.Put(sampleRecord(fp))
		require.NoError(t, err)
	}

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Empty(t, rec.Document, "listing carries metadata only")
		assert.False(t, rec.AddedAt.IsZero())
	}
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i-1].AddedAt.Before(records[i].AddedAt),
			"listing runs newest first")
	}
}

// TestDelete verifies removal by prefix.
func TestDelete(t *testing.T) {
	s := tempStore(t)

	_, err := s.Put(sampleRecord("aaaa1111"))
	require.NoError(t, err)

	require.NoError(t, s.Delete("aaaa"))

	_, err = s.Get("aaaa1111")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete("aaaa"), ErrNotFound)
}

// TestMemoryArchive verifies the throwaway in-memory mode.
func TestMemoryArchive(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	added, err := s.Put(sampleRecord("aaaa1111"))
	require.NoError(t, err)
	assert.True(t, added)

	records, err := s.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
