package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// reportRef identifies one stored markdown artifact.
type reportRef struct {
	Date    string `json:"date"`
	Slug    string `json:"slug"`
	Content string `json:"content,omitempty"`
}

// putReportRequest is the JSON body for PUT /reports/{date}/{slug}.
type putReportRequest struct {
	Content string `json:"content" validate:"required,min=1"`
}

// listReportDates handles GET /api/v1/reports.
func (s *Server) listReportDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.reports.ListDates()
	if err != nil {
		s.writeDomainError(w, err, "failed to list report dates")
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dates": dates, "total_count": len(dates)})
}

// listReports handles GET /api/v1/reports/{date}.
func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	slugs, err := s.reports.ListReports(date)
	if err != nil {
		s.writeDomainError(w, err, "failed to list reports")
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":        date,
		"reports":     slugs,
		"total_count": len(slugs),
	})
}

// getReport handles GET /api/v1/reports/{date}/{slug}.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	slug := chi.URLParam(r, "slug")
	content, err := s.reports.GetReport(date, slug)
	if err != nil {
		s.writeDomainError(w, err, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, reportRef{Date: date, Slug: slug, Content: content})
}

// putReport handles PUT /api/v1/reports/{date}/{slug}.
func (s *Server) putReport(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	slug := chi.URLParam(r, "slug")

	var req putReportRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid report body: %v", err))
		return
	}

	if err := s.reports.SaveReport(date, slug, req.Content); err != nil {
		s.writeDomainError(w, err, "failed to save report")
		return
	}
	writeJSON(w, http.StatusOK, reportRef{Date: date, Slug: slug})
}

// deleteReport handles DELETE /api/v1/reports/{date}/{slug}.
func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	slug := chi.URLParam(r, "slug")
	if err := s.reports.DeleteReport(date, slug); err != nil {
		s.writeDomainError(w, err, "failed to delete report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "date": date, "slug": slug})
}
