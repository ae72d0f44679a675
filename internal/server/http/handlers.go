package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/research-pipeline-service/internal/domain"
	"github.com/helixir/research-pipeline-service/internal/pipeline"
)

// maxRequestBodySize bounds request bodies.
const maxRequestBodySize = 1 << 20

var runDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// triggerRequest is the JSON body for POST /pipeline/run. All fields are
// optional; overrides apply only to the triggered cycle.
type triggerRequest struct {
	Force      bool     `json:"force"`
	MaxReports int      `json:"max_reports,omitempty" validate:"omitempty,min=1,max=5"`
	Keywords   []string `json:"keywords,omitempty" validate:"omitempty,max=20,dive,min=2,max=80"`
	Categories []string `json:"categories,omitempty" validate:"omitempty,max=10,dive,min=2,max=40"`
}

// triggerResponse answers an accepted or rejected trigger.
type triggerResponse struct {
	Status string `json:"status"`
	Date   string `json:"date"`
}

// promoteRequest is the JSON body for POST /runs/{date}/promote.
type promoteRequest struct {
	PaperID string `json:"paper_id" validate:"required,min=3,max=256"`
}

// triggerPipeline handles POST /api/v1/pipeline/run.
func (s *Server) triggerPipeline(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid trigger request: %v", err))
		return
	}

	result := s.pipeline.AcceptCycleOptions(r.Context(), req.Force, pipeline.CycleOptions{
		MaxReports: req.MaxReports,
		Keywords:   req.Keywords,
		Categories: req.Categories,
	})

	resp := triggerResponse{Status: string(result), Date: s.pipeline.Today()}
	switch result {
	case pipeline.AcceptAccepted:
		writeJSON(w, http.StatusAccepted, resp)
	default:
		writeJSON(w, http.StatusConflict, resp)
	}
}

// pipelineStatus handles GET /api/v1/pipeline/status.
func (s *Server) pipelineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Status())
}

// listRuns handles GET /api/v1/runs.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.archive.ListRuns(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "total_count": len(runs)})
}

// getRun handles GET /api/v1/runs/{date}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	date, ok := s.runDate(w, r)
	if !ok {
		return
	}
	run, err := s.archive.GetRun(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, err, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// deleteRun handles DELETE /api/v1/runs/{date}.
func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	date, ok := s.runDate(w, r)
	if !ok {
		return
	}
	if err := s.archive.DeleteRun(r.Context(), date); err != nil {
		s.writeDomainError(w, err, "failed to delete run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "date": date})
}

// promotePaper handles POST /api/v1/runs/{date}/promote.
func (s *Server) promotePaper(w http.ResponseWriter, r *http.Request) {
	date, ok := s.runDate(w, r)
	if !ok {
		return
	}

	var req promoteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid promote request: %v", err))
		return
	}

	if err := s.pipeline.Promote(r.Context(), date, req.PaperID); err != nil {
		s.writeDomainError(w, err, "failed to promote paper")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "promoted",
		"date":     date,
		"paper_id": req.PaperID,
	})
}

// runDate extracts and validates the {date} path parameter.
func (s *Server) runDate(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := chi.URLParam(r, "date")
	if !runDatePattern.MatchString(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// decodeBody reads and unmarshals a bounded JSON request body. An empty
// body decodes to the zero value.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// writeDomainError maps domain errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, internalMsg string) {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Error())
		return
	}
	s.logger.Error().Err(err).Msg(internalMsg)
	writeError(w, http.StatusInternalServerError, internalMsg)
}
