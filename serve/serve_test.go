package serve

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detcfg/store"
)

func testService(t *testing.T) *Service {
	t.Helper()
	archive, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return New(archive)
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func do(svc *Service, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	svc.Router().ServeHTTP(rr, req)
	return rr
}

// TestHealthz verifies the liveness route.
func TestHealthz(t *testing.T) {
	rr := do(testService(t), "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rr.Body.String())
}

// TestValidateDocument verifies the success path of the validation
// route.
func TestValidateDocument(t *testing.T) {
	svc := testService(t)

	rr := do(svc, "POST", "/v1/validate", "", fixture(t, "yolov3_r34_voc.yml"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp ValidationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "YOLOv3", resp.Architecture)
	assert.Equal(t, "VOC", resp.Metric)
	assert.Equal(t, 20, resp.NumClasses)
	assert.Len(t, resp.Fingerprint, 64)
	assert.Empty(t, resp.Warnings)
}

// TestValidateAcrossEncodings verifies that the YAML and JSONC
// renditions of one document answer with the same fingerprint.
func TestValidateAcrossEncodings(t *testing.T) {
	svc := testService(t)

	fromYAML := do(svc, "POST", "/v1/validate", "", fixture(t, "yolov3_r34_voc.yml"))
	require.Equal(t, http.StatusOK, fromYAML.Code, fromYAML.Body.String())
	fromJSON := do(svc, "POST", "/v1/validate", "application/json", fixture(t, "yolov3_r34_voc.jsonc"))
	require.Equal(t, http.StatusOK, fromJSON.Code, fromJSON.Body.String())

	var a, b ValidationResponse
	require.NoError(t, json.Unmarshal(fromYAML.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(fromJSON.Body.Bytes(), &b))
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

// TestValidateRejections verifies the failure classification of the
// validation route.
func TestValidateRejections(t *testing.T) {
	svc := testService(t)

	tests := []struct {
		name     string
		doc      string
		wantCode string
	}{
		{
			name:     "broken syntax",
			doc:      "architecture: [unclosed",
			wantCode: "parse_error",
		},
		{
			name: "unknown key",
			doc: `architecture: YOLOv3
metric: VOC
num_classes: 20
architecure_typo: YOLOv3
YOLOv3:
  backbone: ResNet
  yolo_head: YOLOv3Head
ResNet: {}
YOLOv3Head: {}
`,
			wantCode: "schema_error",
		},
		{
			name: "bad value",
			doc: `architecture: YOLOv3
metric: VOC
num_classes: 0
YOLOv3:
  backbone: ResNet
  yolo_head: YOLOv3Head
ResNet: {}
YOLOv3Head: {}
`,
			wantCode: "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(svc, "POST", "/v1/validate", "", []byte(tt.doc))
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

// TestArchiveFlow walks a document through archive, listing, retrieval
// and deletion.
func TestArchiveFlow(t *testing.T) {
	svc := testService(t)
	doc := fixture(t, "yolov3_r34_voc.yml")

	rr := do(svc, "POST", "/v1/archive", "", doc)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var put ArchiveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &put))
	assert.True(t, put.Added)
	require.Len(t, put.Fingerprint, 64)

	// The JSONC rendition of the same document lands on the same
	// entry.
	rr = do(svc, "POST", "/v1/archive", "application/json", fixture(t, "yolov3_r34_voc.jsonc"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var again ArchiveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	assert.False(t, again.Added)
	assert.Equal(t, put.Fingerprint, again.Fingerprint)

	rr = do(svc, "GET", "/v1/archive", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []ArchiveEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, put.Fingerprint, entries[0].Fingerprint)
	assert.Equal(t, "YOLOv3", entries[0].Architecture)

	rr = do(svc, "GET", "/v1/archive/"+put.Fingerprint[:12], "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, doc, rr.Body.Bytes(), "the archived body comes back unchanged")
	assert.Equal(t, put.Fingerprint, rr.Header().Get("X-Fingerprint"))
	assert.Equal(t, "application/x-yaml", rr.Header().Get("Content-Type"))

	rr = do(svc, "DELETE", "/v1/archive/"+put.Fingerprint, "", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(svc, "GET", "/v1/archive/"+put.Fingerprint, "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	var notFound ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &notFound))
	assert.Equal(t, "not_found", notFound.Code)
}

// TestArchiveRejectsInvalid verifies that broken documents never reach
// the archive.
func TestArchiveRejectsInvalid(t *testing.T) {
	svc := testService(t)

	rr := do(svc, "POST", "/v1/archive", "", []byte("architecture: [unclosed"))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(svc, "GET", "/v1/archive", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

// TestValidateReportsWarnings verifies that suspect settings surface
// in the response without failing it.
func TestValidateReportsWarnings(t *testing.T) {
	svc := testService(t)

	doc := `architecture: YOLOv3
metric: VOC
num_classes: 20
max_iters: 1000
snapshot_iter: 5000
YOLOv3:
  backbone: ResNet
  yolo_head: YOLOv3Head
ResNet: {}
YOLOv3Head: {}
`
	rr := do(svc, "POST", "/v1/validate", "", []byte(doc))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp ValidationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "snapshot_iter", resp.Warnings[0].Field)
}

// TestValidationOnlyService verifies that without an archive the
// archive routes are absent.
func TestValidationOnlyService(t *testing.T) {
	svc := New(nil)

	rr := do(svc, "GET", "/v1/archive", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(svc, "POST", "/v1/validate", "", fixture(t, "yolov3_r34_voc.yml"))
	assert.Equal(t, http.StatusOK, rr.Code)
}
