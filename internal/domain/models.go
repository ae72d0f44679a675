// Package domain provides domain models and business logic for the Research Pipeline Service.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle states of the pipeline orchestrator.
type JobStatus string

const (
	JobStatusIdle    JobStatus = "idle"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// CanAccept returns true if a new pipeline cycle may start from this status.
// Only a running cycle blocks a new one.
func (s JobStatus) CanAccept() bool {
	return s != JobStatusRunning
}

// FigureKind classifies an extracted figure by what it most likely depicts.
type FigureKind string

const (
	FigureKindMethod  FigureKind = "method"
	FigureKindResult  FigureKind = "result"
	FigureKindUnknown FigureKind = "unknown"
)

// Paper holds the descriptive attributes of a scholarly paper. PaperID is
// scheme-prefixed (doi:, arxiv:, pmid:) or an opaque string and is globally
// unique in the archive.
type Paper struct {
	PaperID         string `json:"paper_id"`
	Title           string `json:"title"`
	Abstract        string `json:"abstract,omitempty"`
	Venue           string `json:"venue,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"`
}

// Score is one dimension of a paper's score card.
type Score struct {
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}

// ScoreCard carries the four ranking dimensions assigned to a paper.
type ScoreCard struct {
	Relevance Score   `json:"relevance"`
	Novelty   Score   `json:"novelty"`
	Rigor     Score   `json:"rigor"`
	Impact    Score   `json:"impact"`
	Overall   float64 `json:"overall"`
}

// SimilarPaper is one result of an archive similarity query. The relation is
// computed on demand and never persisted.
type SimilarPaper struct {
	PaperID         string  `json:"paper_id"`
	Title           string  `json:"title"`
	Venue           string  `json:"venue,omitempty"`
	PublicationDate string  `json:"publication_date,omitempty"`
	Score           float64 `json:"score"`
	Summary         string  `json:"summary,omitempty"`
}

// Figure is an image reference discovered for a paper.
type Figure struct {
	URL      string     `json:"url"`
	Caption  string     `json:"caption,omitempty"`
	Kind     FigureKind `json:"kind"`
	Rank     float64    `json:"rank,omitempty"`
	LocalRef string     `json:"local_ref,omitempty"`
}

// RunCard is one paper's entry in a run snapshot: the paper itself, its
// report (possibly empty), similarity links and the resolved landing link.
// SourceContent caches fetched full text during a cycle and is stripped
// before the run is persisted.
type RunCard struct {
	Paper
	Link          string         `json:"link,omitempty"`
	Report        Report         `json:"report"`
	Similar       []SimilarPaper `json:"similar,omitempty"`
	Figures       []Figure       `json:"figures,omitempty"`
	PDFAsset      string         `json:"pdf_asset,omitempty"`
	SourceContent string         `json:"source_content,omitempty"`
}

// Run is the snapshot of one pipeline cycle, keyed by calendar date.
// Exactly one run exists per date; re-storing a date overwrites wholesale.
type Run struct {
	Date        string    `json:"date"`
	ReportCards []RunCard `json:"report_cards"`
	AlsoNotable []RunCard `json:"also_notable"`
	PushText    string    `json:"push_text,omitempty"`
	TotalCount  int       `json:"total_count"`
	StoredAt    time.Time `json:"stored_at,omitempty"`
}

// RunSummary is the listing projection of a stored run.
type RunSummary struct {
	Date       string    `json:"date"`
	TotalCount int       `json:"total_count"`
	StoredAt   time.Time `json:"stored_at"`
}

// JobSnapshot is an immutable copy of the orchestrator's job state, safe to
// hand to callers while a cycle is in flight.
type JobSnapshot struct {
	Status     JobStatus  `json:"status"`
	Date       string     `json:"date,omitempty"`
	Logs       []string   `json:"logs"`
	Total      int        `json:"total"`
	Reports    int        `json:"reports"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// BestLink reconstructs a browsable URL from a scheme-prefixed paper
// identifier, falling back to the provided URL for opaque identifiers.
func BestLink(paperID, fallback string) string {
	switch {
	case strings.HasPrefix(paperID, "doi:"):
		return "https://doi.org/" + strings.TrimPrefix(paperID, "doi:")
	case strings.HasPrefix(paperID, "arxiv:"):
		return "https://arxiv.org/abs/" + strings.TrimPrefix(paperID, "arxiv:")
	case strings.HasPrefix(paperID, "pmid:"):
		return fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", strings.TrimPrefix(paperID, "pmid:"))
	default:
		return fallback
	}
}
