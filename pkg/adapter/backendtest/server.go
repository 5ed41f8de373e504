// Package backendtest provides an in-process fake of the document
// question-answering service for tests and local runs.
package backendtest

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/docqa/pkg/adapter"
	"github.com/m-mizutani/docqa/pkg/model"
)

// Upload records one received document
type Upload struct {
	Filename string
	Content  []byte
}

// Service is the fake. Zero values of the behavior fields produce a healthy
// service that answers with no fragments.
type Service struct {
	mu sync.Mutex

	// SessionID is returned on upload, "session-1" if empty
	SessionID model.SessionID
	// UploadStatus and UploadDetail reject uploads when UploadStatus is set
	UploadStatus int
	UploadDetail string

	// Fragments are streamed one write and flush each
	Fragments []string
	// Sources are sent in the sidecar header unless RawSourcesHeader is set
	Sources          []string
	RawSourcesHeader string
	QueryStatus      int

	Artifact     []byte
	ExportStatus int

	Health string

	uploads []Upload
	queries []adapter.QueryRequest
	exports [][]model.HistoryEntry
}

// NewServer starts svc on a local listener; it is closed with t's cleanup by the caller
func NewServer(svc *Service) *httptest.Server {
	return httptest.NewServer(svc.Handler())
}

func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.health)
	r.Post("/process/", s.process)
	r.Post("/query/", s.query)
	r.Post("/export/", s.export)

	return r
}

func (s *Service) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Service) Queries() []adapter.QueryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.QueryRequest(nil), s.queries...)
}

func (s *Service) Exports() [][]model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]model.HistoryEntry(nil), s.exports...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	status := s.Health
	if status == "" {
		status = "ok"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Service) process(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "file is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{Filename: header.Filename, Content: content})
	status, detail, sessionID := s.UploadStatus, s.UploadDetail, s.SessionID
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": detail})
		return
	}
	if sessionID == "" {
		sessionID = "session-1"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Document processed successfully. Use the session_id to ask questions.",
		"session_id": sessionID,
	})
}

func (s *Service) query(w http.ResponseWriter, r *http.Request) {
	var req adapter.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	s.queries = append(s.queries, req)
	status := s.QueryStatus
	fragments := append([]string(nil), s.Fragments...)
	header := s.RawSourcesHeader
	sources := s.Sources
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "query failed"})
		return
	}

	if header == "" && sources != nil {
		raw, _ := json.Marshal(sources)
		header = base64.StdEncoding.EncodeToString(raw)
	}
	if header != "" {
		w.Header().Set(adapter.SourcesHeader, header)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for _, fragment := range fragments {
		if _, err := io.WriteString(w, fragment); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Service) export(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatHistory []model.HistoryEntry `json:"chat_history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	s.exports = append(s.exports, req.ChatHistory)
	status, artifact := s.ExportStatus, s.Artifact
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "export failed"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact)
}
