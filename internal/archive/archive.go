// Package archive provides persistent storage for papers and pipeline runs
// in the Research Pipeline Service.
//
// The archive is the service's long-term memory: every paper the pipeline
// has ever processed is upserted here together with its generated report,
// and each daily cycle is stored as an immutable-by-convention run snapshot
// keyed by calendar date.
//
// Similarity search is a deliberate full scan: word bags are loaded and
// compared in Go with the Jaccard coefficient. The archive grows at one
// operator's ingestion rate, so correctness matters and indexing does not.
//
// All implementations are safe for concurrent use; the underlying pgxpool
// handles connection pooling. Methods return domain-specific errors
// (domain.ErrNotFound, domain.ErrInvalidInput) wrapped per the usual
// fmt.Errorf %w convention.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-pipeline-service/internal/database"
	"github.com/helixir/research-pipeline-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction
// contexts. Pass a pgx.Tx from database.DB.WithTransaction for atomic
// read-modify-write operations such as PromotePaper.
type DBTX = database.DBTX

const (
	// DefaultSimilarLimit caps FindSimilar results when the caller passes
	// a non-positive limit.
	DefaultSimilarLimit = 3

	// DefaultMinSimilarity is the score floor below which a candidate is
	// not considered related.
	DefaultMinSimilarity = 0.08

	// similarSummaryMax bounds the harvested summary snippet length.
	similarSummaryMax = 220
)

// Archive persists papers, their reports and run snapshots.
type Archive interface {
	UpsertPaper(ctx context.Context, paper domain.Paper, report domain.Report) error
	FindSimilar(ctx context.Context, title, abstract, excludePaperID string, limit int, minScore float64) ([]domain.SimilarPaper, error)
	StoreRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, date string) (*domain.Run, error)
	ListRuns(ctx context.Context) ([]domain.RunSummary, error)
	DeleteRun(ctx context.Context, date string) error
	PromotePaper(ctx context.Context, date string, card domain.RunCard) error
	Size(ctx context.Context) (int64, error)
	KnownPaperIDs(ctx context.Context) (map[string]struct{}, error)
}

// Compile-time interface verification.
var _ Archive = (*PgArchive)(nil)

// PgArchive is a PostgreSQL implementation of Archive.
type PgArchive struct {
	db DBTX
}

// NewPgArchive creates a new PostgreSQL archive.
func NewPgArchive(db DBTX) *PgArchive {
	return &PgArchive{db: db}
}

// UpsertPaper inserts or replaces a paper and its report. The word bag is
// recomputed from title and abstract on every call so similarity always
// reflects the latest metadata.
func (a *PgArchive) UpsertPaper(ctx context.Context, paper domain.Paper, report domain.Report) error {
	if paper.PaperID == "" {
		return domain.NewValidationError("paper_id", "paper ID is required")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	bag := BagString(Tokenize(paper.Title + " " + paper.Abstract))

	query := `
		INSERT INTO papers (
			paper_id, title, abstract, venue, publication_date,
			report_json, word_bag, stored_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (paper_id) DO UPDATE SET
			title = EXCLUDED.title,
			abstract = EXCLUDED.abstract,
			venue = EXCLUDED.venue,
			publication_date = EXCLUDED.publication_date,
			report_json = EXCLUDED.report_json,
			word_bag = EXCLUDED.word_bag,
			stored_at = EXCLUDED.stored_at`

	_, err = a.db.Exec(ctx, query,
		paper.PaperID,
		paper.Title,
		paper.Abstract,
		paper.Venue,
		paper.PublicationDate,
		reportJSON,
		bag,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert paper: %w", err)
	}

	return nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// harvestSummary picks the most informative short text from a stored
// report. Malformed report JSON yields an empty summary, never an error.
func harvestSummary(reportJSON []byte) string {
	if len(reportJSON) == 0 {
		return ""
	}
	var report domain.Report
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return ""
	}
	summary := report.Summary
	if summary == "" {
		summary = report.MainConclusion
	}
	if summary == "" {
		summary = report.MethodsDetailed
	}
	if summary == "" {
		return ""
	}
	summary = strings.TrimSpace(whitespaceRun.ReplaceAllString(summary, " "))
	if r := []rune(summary); len(r) > similarSummaryMax {
		summary = string(r[:similarSummaryMax])
	}
	return summary
}

// FindSimilar returns up to limit archived papers whose word bags clear
// minScore against the query's bag, sorted by descending score. Candidates
// scan in stored_at then paper_id order, so equal scores tie-break
// deterministically. An empty archive or an empty query bag yields an
// empty result, not an error.
func (a *PgArchive) FindSimilar(ctx context.Context, title, abstract, excludePaperID string, limit int, minScore float64) ([]domain.SimilarPaper, error) {
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}
	if minScore <= 0 {
		minScore = DefaultMinSimilarity
	}

	queryBag := Tokenize(title + " " + abstract)
	if len(queryBag) == 0 {
		return []domain.SimilarPaper{}, nil
	}

	var (
		rows pgx.Rows
		err  error
	)
	if excludePaperID != "" {
		rows, err = a.db.Query(ctx, `
			SELECT paper_id, title, venue, publication_date, word_bag, report_json
			FROM papers
			WHERE paper_id != $1
			ORDER BY stored_at, paper_id`, excludePaperID)
	} else {
		rows, err = a.db.Query(ctx, `
			SELECT paper_id, title, venue, publication_date, word_bag, report_json
			FROM papers
			ORDER BY stored_at, paper_id`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan archive for similar papers: %w", err)
	}
	defer rows.Close()

	scored := make([]domain.SimilarPaper, 0)
	for rows.Next() {
		var (
			candidate  domain.SimilarPaper
			bag        string
			reportJSON []byte
		)
		if err := rows.Scan(&candidate.PaperID, &candidate.Title, &candidate.Venue,
			&candidate.PublicationDate, &bag, &reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan paper row: %w", err)
		}
		score := Jaccard(queryBag, ParseBag(bag))
		if score < minScore {
			continue
		}
		candidate.Score = score
		candidate.Summary = harvestSummary(reportJSON)
		scored = append(scored, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// runPayload is the persisted shape of a run's papers_json column.
type runPayload struct {
	ReportCards []domain.RunCard `json:"report_cards"`
	AlsoNotable []domain.RunCard `json:"also_notable"`
}

// stripCards returns copies of the cards without cached full-text content,
// which can run to megabytes and has no value at rest.
func stripCards(cards []domain.RunCard) []domain.RunCard {
	out := make([]domain.RunCard, len(cards))
	for i, c := range cards {
		c.SourceContent = ""
		out[i] = c
	}
	return out
}

// StoreRun persists a run snapshot, overwriting any previous snapshot for
// the same date wholesale. The total count is recomputed from the card
// lists, not trusted from the caller.
func (a *PgArchive) StoreRun(ctx context.Context, run *domain.Run) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.Date == "" {
		return domain.NewValidationError("date", "run date is required")
	}

	payload, err := json.Marshal(runPayload{
		ReportCards: stripCards(run.ReportCards),
		AlsoNotable: stripCards(run.AlsoNotable),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run payload: %w", err)
	}

	total := len(run.ReportCards) + len(run.AlsoNotable)

	query := `
		INSERT INTO runs (run_date, papers_json, push_text, total_count, stored_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_date) DO UPDATE SET
			papers_json = EXCLUDED.papers_json,
			push_text = EXCLUDED.push_text,
			total_count = EXCLUDED.total_count,
			stored_at = EXCLUDED.stored_at`

	_, err = a.db.Exec(ctx, query, run.Date, payload, run.PushText, total, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	return nil
}

// GetRun retrieves the run snapshot for a date. A missing row and a row
// whose payload no longer parses are both reported as not found; callers
// cannot act on a corrupt snapshot any more than on an absent one.
func (a *PgArchive) GetRun(ctx context.Context, date string) (*domain.Run, error) {
	if date == "" {
		return nil, domain.NewValidationError("date", "run date is required")
	}

	query := `
		SELECT run_date, papers_json, push_text, total_count, stored_at
		FROM runs
		WHERE run_date = $1`

	var (
		run        domain.Run
		papersJSON []byte
	)
	err := a.db.QueryRow(ctx, query, date).Scan(
		&run.Date, &papersJSON, &run.PushText, &run.TotalCount, &run.StoredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", date)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var payload runPayload
	if err := json.Unmarshal(papersJSON, &payload); err != nil {
		return nil, domain.NewNotFoundError("run", date)
	}
	run.ReportCards = payload.ReportCards
	run.AlsoNotable = payload.AlsoNotable

	return &run, nil
}

// ListRuns returns summaries of all stored runs, newest date first.
func (a *PgArchive) ListRuns(ctx context.Context) ([]domain.RunSummary, error) {
	rows, err := a.db.Query(ctx, `
		SELECT run_date, total_count, stored_at
		FROM runs
		ORDER BY run_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.RunSummary, 0)
	for rows.Next() {
		var s domain.RunSummary
		if err := rows.Scan(&s.Date, &s.TotalCount, &s.StoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return summaries, nil
}

// DeleteRun removes a stored run snapshot.
func (a *PgArchive) DeleteRun(ctx context.Context, date string) error {
	if date == "" {
		return domain.NewValidationError("date", "run date is required")
	}

	result, err := a.db.Exec(ctx, `DELETE FROM runs WHERE run_date = $1`, date)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", date)
	}

	return nil
}

// PromotePaper moves a paper from a run's also-notable list into its deep
// report list, replacing the notable entry with the supplied card and
// recomputing the total. Promoting a paper that already holds a deep
// report is a no-op. The run row is locked for the duration, so this must
// run inside a transaction (database.DB.WithTransaction) to be safe
// against concurrent promotions for the same date.
func (a *PgArchive) PromotePaper(ctx context.Context, date string, card domain.RunCard) error {
	if date == "" {
		return domain.NewValidationError("date", "run date is required")
	}
	if card.PaperID == "" {
		return domain.NewValidationError("paper_id", "paper ID is required")
	}

	var papersJSON []byte
	err := a.db.QueryRow(ctx, `
		SELECT papers_json
		FROM runs
		WHERE run_date = $1
		FOR UPDATE`, date).Scan(&papersJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("run", date)
		}
		return fmt.Errorf("failed to lock run for promotion: %w", err)
	}

	var payload runPayload
	if err := json.Unmarshal(papersJSON, &payload); err != nil {
		return domain.NewNotFoundError("run", date)
	}

	for _, c := range payload.ReportCards {
		if c.PaperID == card.PaperID {
			return nil
		}
	}

	found := false
	notable := make([]domain.RunCard, 0, len(payload.AlsoNotable))
	for _, c := range payload.AlsoNotable {
		if c.PaperID == card.PaperID {
			found = true
			continue
		}
		notable = append(notable, c)
	}
	if !found {
		return domain.NewNotFoundError("paper", card.PaperID)
	}

	card.SourceContent = ""
	payload.ReportCards = append(payload.ReportCards, card)
	payload.AlsoNotable = notable

	updated, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal promoted run payload: %w", err)
	}

	total := len(payload.ReportCards) + len(payload.AlsoNotable)
	result, err := a.db.Exec(ctx, `
		UPDATE runs
		SET papers_json = $1, total_count = $2, stored_at = $3
		WHERE run_date = $4`, updated, total, time.Now().UTC(), date)
	if err != nil {
		return fmt.Errorf("failed to store promoted run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", date)
	}

	return nil
}

// Size returns the number of papers in the archive.
func (a *PgArchive) Size(ctx context.Context) (int64, error) {
	var count int64
	if err := a.db.QueryRow(ctx, `SELECT COUNT(*) FROM papers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count papers: %w", err)
	}
	return count, nil
}

// KnownPaperIDs returns the set of all paper IDs already archived. Exposed
// for feed-side dedup; the cycle itself re-upserts known papers so forced
// re-runs refresh their reports.
func (a *PgArchive) KnownPaperIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := a.db.Query(ctx, `SELECT paper_id FROM papers`)
	if err != nil {
		return nil, fmt.Errorf("failed to list paper IDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan paper ID: %w", err)
		}
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paper IDs: %w", err)
	}

	return ids, nil
}
