// Package api exposes the extraction and comparison operations over HTTP.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/matcher"
	"github.com/sells-group/bom-validator/internal/model"
	"github.com/sells-group/bom-validator/internal/runner"
	"github.com/sells-group/bom-validator/internal/store"
)

// maxUploadBytes caps a single document upload at 50 MiB.
const maxUploadBytes = 50 << 20

// allowedExtensions lists the accepted upload extensions per source.
var allowedExtensions = map[model.SourceRole][]string{
	model.SourceCS:  {".pdf"},
	model.SourceBOM: {".xlsx", ".xlsm", ".xltx", ".xltm"},
	model.SourceSAP: {".pdf"},
}

// Server handles the HTTP API.
type Server struct {
	store  store.Store
	runner *runner.Runner
	rawDir string
}

// NewServer builds a Server. Uploaded documents are kept under rawDir,
// grouped by session.
func NewServer(st store.Store, r *runner.Runner, rawDir string) *Server {
	return &Server{store: st, runner: r, rawDir: rawDir}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Post("/extract/{source}/{sessionID}", s.handleExtract)
		r.Post("/process/{sessionID}", s.handleProcess)
		r.Post("/compare/{sessionID}", s.handleCompare)
		r.Get("/results/{sessionID}", s.handleResults)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	session, err := s.store.EnsureSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []model.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleExtract accepts one document for one source and extracts it.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	role, ok := parseSource(chi.URLParam(r, "source"))
	if !ok {
		writeError(w, http.StatusBadRequest, eris.New("unknown source, expected cs, bom, or sap"))
		return
	}

	raw, err := s.readUpload(r, "file", role, sessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	status, err := s.runner.RunSession(r.Context(), sessionID, map[model.SourceRole][]byte{role: raw})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleProcess accepts up to three documents in one request, keyed by
// source name, and extracts them concurrently.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	inputs := map[model.SourceRole][]byte{}
	for _, role := range model.AllSources {
		raw, err := s.readUpload(r, strings.ToLower(string(role)), role, sessionID)
		if err != nil {
			if eris.Is(err, errMissingFile) {
				continue
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		inputs[role] = raw
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, eris.New("no documents uploaded, expected cs, bom, and/or sap files"))
		return
	}

	status, err := s.runner.RunSession(r.Context(), sessionID, inputs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	result, err := s.runner.Compare(r.Context(), sessionID)
	if err != nil {
		switch {
		case eris.Is(err, matcher.ErrInsufficientSources):
			writeError(w, http.StatusConflict, err)
		case eris.Is(err, store.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	results, err := s.store.GetResults(r.Context(), sessionID)
	if err != nil {
		if eris.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

var errMissingFile = eris.New("api: file field missing")

// readUpload pulls one multipart file out of the request, checks its
// extension against the source's allow list, and archives a copy under the
// raw documents directory.
func (s *Server) readUpload(r *http.Request, field string, role model.SourceRole, sessionID string) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, errMissingFile
		}
		return nil, eris.Wrapf(err, "read %s upload", field)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !extensionAllowed(role, ext) {
		return nil, eris.Errorf("%s rejects %q uploads, expected one of %s",
			role, ext, strings.Join(allowedExtensions[role], ", "))
	}

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "read %s upload body", field)
	}
	if len(raw) > maxUploadBytes {
		return nil, eris.Errorf("%s upload exceeds %d bytes", field, maxUploadBytes)
	}

	if err := s.archive(sessionID, role, ext, raw); err != nil {
		// The upload is still usable; archival is best effort.
		zap.L().Warn("archive upload",
			zap.String("session_id", sessionID),
			zap.String("source", string(role)),
			zap.Error(err))
	}
	return raw, nil
}

// archive writes the uploaded bytes under rawDir/<session>/<source><ext>.
func (s *Server) archive(sessionID string, role model.SourceRole, ext string, raw []byte) error {
	if s.rawDir == "" {
		return nil
	}
	dir := filepath.Join(s.rawDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "create session dir")
	}
	name := strings.ToLower(string(role)) + ext
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		return eris.Wrap(err, "write document")
	}
	return nil
}

func parseSource(s string) (model.SourceRole, bool) {
	switch strings.ToLower(s) {
	case "cs":
		return model.SourceCS, true
	case "bom":
		return model.SourceBOM, true
	case "sap":
		return model.SourceSAP, true
	default:
		return "", false
	}
}

func extensionAllowed(role model.SourceRole, ext string) bool {
	for _, allowed := range allowedExtensions[role] {
		if ext == allowed {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": eris.ToString(err, false)})
}
