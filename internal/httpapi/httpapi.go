// Package httpapi exposes the synthesis pipeline over HTTP.
//
// Three routes make up the public surface: POST /generate submits a request,
// GET /status/{jobId} polls a job, and GET /stream serves cached audio with
// byte-range support. Validation errors surface synchronously as 4xx; all
// later failures are observed through polling.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/service"
)

// HTTP headers and content types.
const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Server holds the handlers for the public API.
type Server struct {
	svc *service.Service
	log *logger.Logger
}

// NewServer creates the HTTP layer over a synthesis service.
func NewServer(svc *service.Service, log *logger.Logger) *Server {
	return &Server{svc: svc, log: log}
}

// Routes returns the route table for the service.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /status/{jobId}", s.handleStatus)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// generateRequest is the JSON body of POST /generate.
type generateRequest struct {
	VideoID string  `json:"videoId"`
	Text    string  `json:"text"`
	Lang    string  `json:"lang"`
	Voice   string  `json:"voice"`
	Speed   float64 `json:"speed"`
	Format  string  `json:"format"`
}

// statusResponse is the JSON body of GET /status/{jobId}. Error is null
// until a job fails.
type statusResponse struct {
	JobID    string  `json:"jobId"`
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	FilePath string  `json:"filePath,omitempty"`
	Error    *string `json:"error"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	result, err := s.svc.Synthesize(core.SynthesisRequest{
		VideoID:  body.VideoID,
		Text:     body.Text,
		Language: body.Lang,
		Voice:    body.Voice,
		Speed:    body.Speed,
		Format:   body.Format,
	})

	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())

		return
	case err != nil:
		s.log.Error("Synthesize failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	job, err := s.svc.Status(jobID)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")

			return
		}

		s.log.Error("Status lookup failed for %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	resp := statusResponse{
		JobID:    job.JobID,
		Status:   string(job.Status),
		Progress: job.Progress,
		FilePath: job.FilePath,
		Error:    nil,
	}

	if job.Error != "" {
		resp.Error = &job.Error
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
