package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/extract"
	"github.com/sells-group/bom-validator/internal/matcher"
	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/normalize"
	"github.com/sells-group/bom-validator/internal/runner"
	"github.com/sells-group/bom-validator/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeExtractor struct {
	role  model.SourceRole
	items []normalize.RawItem
	err   error
}

func (f *fakeExtractor) Role() model.SourceRole { return f.role }

func (f *fakeExtractor) Extract(ctx context.Context, raw []byte) ([]normalize.RawItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func newTestServer(t *testing.T, extractors ...extract.Extractor) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	r := runner.New(st, normalize.New(normalize.DefaultDictionary()), extractors, matcher.DefaultConfig(), time.Minute)
	return NewServer(st, r, filepath.Join(t.TempDir(), "raw")), st
}

// multipartBody builds a request body with one file per field name.
func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, filename := range files {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("document bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doRequest(t *testing.T, h http.Handler, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateAndListSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doRequest(t, router, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var sess model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, model.StatusNotStarted, sess.Statuses[model.SourceCS])

	rec = doRequest(t, router, http.MethodGet, "/api/sessions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []model.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, sess.ID, summaries[0].SessionID)
}

func TestExtractSingleSource(t *testing.T) {
	srv, st := newTestServer(t, &fakeExtractor{
		role:  model.SourceBOM,
		items: []normalize.RawItem{{"item_number": "10", "description": "STRAINER SS316"}},
	})

	body, contentType := multipartBody(t, map[string]string{"file": "parts.xlsx"})
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/extract/bom/s-1", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var status model.SessionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, model.StatusSucceeded, status.Sources[model.SourceBOM])

	records, err := st.GetRecords(context.Background(), "s-1", model.SourceBOM)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExtractRejectsWrongExtension(t *testing.T) {
	srv, _ := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"file": "parts.csv"})
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/extract/bom/s-1", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ".csv")
}

func TestExtractUnknownSource(t *testing.T) {
	srv, _ := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"file": "parts.pdf"})
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/extract/dwg/s-1", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessMultipleSources(t *testing.T) {
	srv, _ := newTestServer(t,
		&fakeExtractor{role: model.SourceCS, items: []normalize.RawItem{{"ref": "10", "description": "STRAINER SS316"}}},
		&fakeExtractor{role: model.SourceBOM, items: []normalize.RawItem{{"item_number": "10", "description": "STRAINER SS316"}}},
		&fakeExtractor{role: model.SourceSAP, err: eris.New("pdftotext exited 1")},
	)

	body, contentType := multipartBody(t, map[string]string{
		"cs":  "drawing.pdf",
		"bom": "parts.xlsx",
		"sap": "datasheet.pdf",
	})
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/process/s-1", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var status model.SessionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, model.StatusSucceeded, status.Sources[model.SourceCS])
	assert.Equal(t, model.StatusSucceeded, status.Sources[model.SourceBOM])
	assert.Equal(t, model.StatusFailed, status.Sources[model.SourceSAP])
	assert.Contains(t, status.Errors[model.SourceSAP], "pdftotext")
}

func TestProcessNoFiles(t *testing.T) {
	srv, _ := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{})
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/process/s-1", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareEndpoint(t *testing.T) {
	srv, _ := newTestServer(t,
		&fakeExtractor{role: model.SourceCS, items: []normalize.RawItem{{"ref": "10", "description": "STRAINER SS316"}}},
		&fakeExtractor{role: model.SourceBOM, items: []normalize.RawItem{{"item_number": "10", "description": "STRAINER SS316"}}},
	)
	router := srv.Router()

	body, contentType := multipartBody(t, map[string]string{"cs": "d.pdf", "bom": "p.xlsx"})
	rec := doRequest(t, router, http.MethodPost, "/api/process/s-1", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/compare/s-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result model.ComparisonResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Groups, 1)
}

func TestCompareTooFewSources(t *testing.T) {
	srv, _ := newTestServer(t,
		&fakeExtractor{role: model.SourceCS, items: []normalize.RawItem{{"ref": "10", "description": "STRAINER SS316"}}},
	)
	router := srv.Router()

	body, contentType := multipartBody(t, map[string]string{"cs": "d.pdf"})
	rec := doRequest(t, router, http.MethodPost, "/api/process/s-1", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/compare/s-1", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResultsEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, func() error {
		_, err := st.EnsureSession(context.Background(), "s-1")
		return err
	}())

	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/results/s-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var results model.SessionResults
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Equal(t, "s-1", results.SessionID)
}

func TestResultsUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/results/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
