// Package serve - HTTP service exposing document validation and the
// archive.
package serve

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models"
	"github.com/nvr-ai/go-detcfg/models/model"
	"github.com/nvr-ai/go-detcfg/store"
)

// MaxDocumentBytes caps the request body accepted on document routes.
const MaxDocumentBytes = 4 << 20

// Service handles validation and archive requests. The archive is
// optional; without one only validation routes are mounted.
type Service struct {
	archive *store.Store
}

// New creates a service. Pass a nil archive to serve validation only.
func New(archive *store.Store) *Service {
	return &Service{archive: archive}
}

// ValidationResponse is the body returned for a valid document.
type ValidationResponse struct {
	Valid        bool          `json:"valid"`
	Architecture string        `json:"architecture"`
	Metric       string        `json:"metric"`
	NumClasses   int           `json:"num_classes"`
	Fingerprint  string        `json:"fingerprint"`
	Warnings     []WarningBody `json:"warnings,omitempty"`
}

// WarningBody is one non-fatal diagnostic in a validation response.
type WarningBody struct {
	Section string `json:"section,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse is the body returned for any failed request. Code
// classifies the failure; for invalid documents it names the stage
// that rejected them.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ArchiveResponse is the body returned after archiving a document.
type ArchiveResponse struct {
	Fingerprint string `json:"fingerprint"`
	Added       bool   `json:"added"`
}

// ArchiveEntry is one archive listing row.
type ArchiveEntry struct {
	Fingerprint  string    `json:"fingerprint"`
	Architecture string    `json:"architecture"`
	Metric       string    `json:"metric"`
	NumClasses   int       `json:"num_classes"`
	Format       string    `json:"format"`
	AddedAt      time.Time `json:"added_at"`
}

// Router mounts the service routes.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods("GET")
	r.HandleFunc("/v1/validate", s.handleValidate).Methods("POST")
	if s.archive != nil {
		r.HandleFunc("/v1/archive", s.handleArchiveList).Methods("GET")
		r.HandleFunc("/v1/archive", s.handleArchivePut).Methods("POST")
		r.HandleFunc("/v1/archive/{fingerprint}", s.handleArchiveGet).Methods("GET")
		r.HandleFunc("/v1/archive/{fingerprint}", s.handleArchiveDelete).Methods("DELETE")
	}
	r.Use(requestLogger)
	return r
}

// ListenAndServe runs the service on addr until the server fails.
func (s *Service) ListenAndServe(addr string) error {
	srv := &http.Server{
		Handler:      s.Router(),
		Addr:         addr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.WithField("addr", addr).Info("serving")
	return srv.ListenAndServe()
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleValidate interprets the posted document and reports either its
// summary or the first problem found.
func (s *Service) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, format, ok := readDocument(w, r)
	if !ok {
		return
	}
	m, err := interpret(body, format)
	if err != nil {
		sendError(w, errKind(err), err.Error(), http.StatusUnprocessableEntity)
		return
	}
	sendJSON(w, http.StatusOK, validationBody(m))
}

// handleArchivePut validates the posted document and stores it under
// its fingerprint. Re-posting a known document in any encoding answers
// with the existing entry.
func (s *Service) handleArchivePut(w http.ResponseWriter, r *http.Request) {
	body, format, ok := readDocument(w, r)
	if !ok {
		return
	}
	m, err := interpret(body, format)
	if err != nil {
		sendError(w, errKind(err), err.Error(), http.StatusUnprocessableEntity)
		return
	}

	added, err := s.archive.Put(store.Record{
		Fingerprint:  m.Fingerprint.String(),
		Architecture: m.Architecture,
		Metric:       string(m.Run.Metric),
		NumClasses:   m.Run.NumClasses,
		Format:       format,
		Document:     body,
	})
	if err != nil {
		sendError(w, "archive_error", err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	sendJSON(w, status, ArchiveResponse{
		Fingerprint: m.Fingerprint.String(),
		Added:       added,
	})
}

func (s *Service) handleArchiveList(w http.ResponseWriter, _ *http.Request) {
	records, err := s.archive.List()
	if err != nil {
		sendError(w, "archive_error", err.Error(), http.StatusInternalServerError)
		return
	}
	entries := make([]ArchiveEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, ArchiveEntry{
			Fingerprint:  rec.Fingerprint,
			Architecture: rec.Architecture,
			Metric:       rec.Metric,
			NumClasses:   rec.NumClasses,
			Format:       string(rec.Format),
			AddedAt:      rec.AddedAt,
		})
	}
	sendJSON(w, http.StatusOK, entries)
}

// handleArchiveGet returns the archived document itself, in the
// encoding it was archived with.
func (s *Service) handleArchiveGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	contentType := "application/x-yaml"
	if rec.Format == config.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Fingerprint", rec.Fingerprint)
	w.Write(rec.Document)
}

func (s *Service) handleArchiveDelete(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.archive.Delete(rec.Fingerprint); err != nil {
		sendError(w, "archive_error", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the fingerprint path variable, answering the request
// itself when resolution fails.
func (s *Service) lookup(w http.ResponseWriter, r *http.Request) (store.Record, bool) {
	prefix := mux.Vars(r)["fingerprint"]
	rec, err := s.archive.Get(prefix)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, "not_found", "no archived document matches "+prefix, http.StatusNotFound)
		return store.Record{}, false
	case errors.Is(err, store.ErrAmbiguous):
		sendError(w, "ambiguous_fingerprint", err.Error(), http.StatusBadRequest)
		return store.Record{}, false
	case err != nil:
		sendError(w, "archive_error", err.Error(), http.StatusInternalServerError)
		return store.Record{}, false
	}
	return rec, true
}

// readDocument reads a request body and decides its encoding from the
// Content-Type header. JSON variants interpret as JSON, everything
// else as YAML.
func readDocument(w http.ResponseWriter, r *http.Request) ([]byte, config.Format, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "document_too_large", err.Error(), http.StatusRequestEntityTooLarge)
		} else {
			sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		}
		return nil, "", false
	}
	format := config.FormatYAML
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		format = config.FormatJSON
	}
	return body, format, true
}

func interpret(body []byte, format config.Format) (*model.Model, error) {
	tree, err := config.Parse(body, format)
	if err != nil {
		return nil, err
	}
	return models.Build(tree)
}

func validationBody(m *model.Model) ValidationResponse {
	resp := ValidationResponse{
		Valid:        true,
		Architecture: m.Architecture,
		Metric:       string(m.Run.Metric),
		NumClasses:   m.Run.NumClasses,
		Fingerprint:  m.Fingerprint.String(),
	}
	for _, warn := range m.Warnings {
		resp.Warnings = append(resp.Warnings, WarningBody{
			Section: warn.Section,
			Field:   warn.Field,
			Message: warn.Msg,
		})
	}
	return resp
}

// errKind names the stage that rejected a document.
func errKind(err error) string {
	var pe *config.ParseError
	var se *config.SchemaError
	var ve *config.ValidationError
	switch {
	case errors.As(err, &pe):
		return "parse_error"
	case errors.As(err, &se):
		return "schema_error"
	case errors.As(err, &ve):
		return "validation_error"
	default:
		return "invalid_document"
	}
}

func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{Code: code, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger emits one structured access log line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("request completed")
	})
}
