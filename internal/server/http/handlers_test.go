package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-pipeline-service/internal/domain"
	"github.com/helixir/research-pipeline-service/internal/pipeline"
)

type stubPipeline struct {
	result     pipeline.AcceptResult
	lastForce  bool
	lastOpts   pipeline.CycleOptions
	promoteErr error
	promoted   []string
	snapshot   domain.JobSnapshot
}

func (p *stubPipeline) AcceptCycleOptions(_ context.Context, force bool, opts pipeline.CycleOptions) pipeline.AcceptResult {
	p.lastForce = force
	p.lastOpts = opts
	return p.result
}

func (p *stubPipeline) Status() domain.JobSnapshot { return p.snapshot }

func (p *stubPipeline) Promote(_ context.Context, date, paperID string) error {
	if p.promoteErr != nil {
		return p.promoteErr
	}
	p.promoted = append(p.promoted, date+"/"+paperID)
	return nil
}

func (p *stubPipeline) Today() string { return "2026-08-29" }

type stubArchive struct {
	runs    map[string]*domain.Run
	listErr error
}

func newStubArchive() *stubArchive {
	return &stubArchive{runs: make(map[string]*domain.Run)}
}

func (a *stubArchive) UpsertPaper(context.Context, domain.Paper, domain.Report) error { return nil }

func (a *stubArchive) FindSimilar(context.Context, string, string, string, int, float64) ([]domain.SimilarPaper, error) {
	return nil, nil
}

func (a *stubArchive) StoreRun(_ context.Context, run *domain.Run) error {
	a.runs[run.Date] = run
	return nil
}

func (a *stubArchive) GetRun(_ context.Context, date string) (*domain.Run, error) {
	run, ok := a.runs[date]
	if !ok {
		return nil, domain.NewNotFoundError("run", date)
	}
	return run, nil
}

func (a *stubArchive) ListRuns(context.Context) ([]domain.RunSummary, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	summaries := make([]domain.RunSummary, 0, len(a.runs))
	for _, run := range a.runs {
		summaries = append(summaries, domain.RunSummary{
			Date:       run.Date,
			TotalCount: run.TotalCount,
			StoredAt:   run.StoredAt,
		})
	}
	return summaries, nil
}

func (a *stubArchive) DeleteRun(_ context.Context, date string) error {
	if _, ok := a.runs[date]; !ok {
		return domain.NewNotFoundError("run", date)
	}
	delete(a.runs, date)
	return nil
}

func (a *stubArchive) PromotePaper(context.Context, string, domain.RunCard) error { return nil }

func (a *stubArchive) Size(context.Context) (int64, error) { return int64(len(a.runs)), nil }

func (a *stubArchive) KnownPaperIDs(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

type stubReportStore struct {
	docs map[string]string
}

func newStubReportStore() *stubReportStore {
	return &stubReportStore{docs: make(map[string]string)}
}

func (s *stubReportStore) ListDates() ([]string, error) { return []string{"2026-08-29"}, nil }

func (s *stubReportStore) ListReports(date string) ([]string, error) {
	var slugs []string
	for key := range s.docs {
		if len(key) > len(date) && key[:len(date)] == date {
			slugs = append(slugs, key[len(date)+1:])
		}
	}
	return slugs, nil
}

func (s *stubReportStore) GetReport(date, slug string) (string, error) {
	content, ok := s.docs[date+"/"+slug]
	if !ok {
		return "", domain.NewNotFoundError("report", date+"/"+slug)
	}
	return content, nil
}

func (s *stubReportStore) SaveReport(date, slug, content string) error {
	s.docs[date+"/"+slug] = content
	return nil
}

func (s *stubReportStore) DeleteReport(date, slug string) error {
	if _, ok := s.docs[date+"/"+slug]; !ok {
		return domain.NewNotFoundError("report", date+"/"+slug)
	}
	delete(s.docs, date+"/"+slug)
	return nil
}

type serverFixture struct {
	server   *Server
	pipeline *stubPipeline
	archive  *stubArchive
	reports  *stubReportStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	pipe := &stubPipeline{result: pipeline.AcceptAccepted}
	arch := newStubArchive()
	store := newStubReportStore()
	srv := NewServer(Config{Address: "127.0.0.1:0"}, pipe, arch, store, nil, zerolog.Nop())
	return &serverFixture{server: srv, pipeline: pipe, archive: arch, reports: store}
}

func (f *serverFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTriggerPipeline(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/pipeline/run", triggerRequest{Force: true, MaxReports: 2})
		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeMap(t, rec)
		assert.Equal(t, "accepted", body["status"])
		assert.Equal(t, "2026-08-29", body["date"])
		assert.True(t, f.pipeline.lastForce)
		assert.Equal(t, 2, f.pipeline.lastOpts.MaxReports)
	})

	t.Run("empty body uses defaults", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/pipeline/run", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.False(t, f.pipeline.lastForce)
		assert.Zero(t, f.pipeline.lastOpts.MaxReports)
	})

	t.Run("already running", func(t *testing.T) {
		f := newServerFixture(t)
		f.pipeline.result = pipeline.AcceptAlreadyRunning
		rec := f.do(t, http.MethodPost, "/api/v1/pipeline/run", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "already_running", decodeMap(t, rec)["status"])
	})

	t.Run("already run today", func(t *testing.T) {
		f := newServerFixture(t)
		f.pipeline.result = pipeline.AcceptAlreadyRunToday
		rec := f.do(t, http.MethodPost, "/api/v1/pipeline/run", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "already_run_today", decodeMap(t, rec)["status"])
	})

	t.Run("rejects out of range max reports", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/pipeline/run", triggerRequest{MaxReports: 12})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		f := newServerFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		f.server.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPipelineStatus(t *testing.T) {
	f := newServerFixture(t)
	started := time.Date(2026, 8, 29, 7, 0, 0, 0, time.UTC)
	f.pipeline.snapshot = domain.JobSnapshot{
		Status:    domain.JobStatusRunning,
		Date:      "2026-08-29",
		Total:     5,
		Reports:   2,
		StartedAt: &started,
	}

	rec := f.do(t, http.MethodGet, "/api/v1/pipeline/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(5), body["total"])
}

func TestRunEndpoints(t *testing.T) {
	run := &domain.Run{
		Date:       "2026-08-29",
		TotalCount: 4,
		StoredAt:   time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC),
		ReportCards: []domain.RunCard{
			{Paper: domain.Paper{PaperID: "arxiv:2408.00001", Title: "Deep Read"}},
		},
	}

	t.Run("get existing run", func(t *testing.T) {
		f := newServerFixture(t)
		require.NoError(t, f.archive.StoreRun(context.Background(), run))
		rec := f.do(t, http.MethodGet, "/api/v1/runs/2026-08-29", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got domain.Run
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, run.Date, got.Date)
		assert.Len(t, got.ReportCards, 1)
	})

	t.Run("get missing run", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/runs/2026-01-01", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/runs/not-a-date", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list runs", func(t *testing.T) {
		f := newServerFixture(t)
		require.NoError(t, f.archive.StoreRun(context.Background(), run))
		rec := f.do(t, http.MethodGet, "/api/v1/runs", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), decodeMap(t, rec)["total_count"])
	})

	t.Run("delete run", func(t *testing.T) {
		f := newServerFixture(t)
		require.NoError(t, f.archive.StoreRun(context.Background(), run))
		rec := f.do(t, http.MethodDelete, "/api/v1/runs/2026-08-29", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = f.do(t, http.MethodDelete, "/api/v1/runs/2026-08-29", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPromoteEndpoint(t *testing.T) {
	t.Run("promotes", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/runs/2026-08-29/promote", promoteRequest{PaperID: "arxiv:2408.00002"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"2026-08-29/arxiv:2408.00002"}, f.pipeline.promoted)
	})

	t.Run("requires paper id", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/runs/2026-08-29/promote", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps not found", func(t *testing.T) {
		f := newServerFixture(t)
		f.pipeline.promoteErr = domain.NewNotFoundError("paper", "arxiv:x")
		rec := f.do(t, http.MethodPost, "/api/v1/runs/2026-08-29/promote", promoteRequest{PaperID: "arxiv:x"})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestReportEndpoints(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		f := newServerFixture(t)
		put := f.do(t, http.MethodPut, "/api/v1/reports/2026-08-29/deep_read", putReportRequest{Content: "# Deep Read"})
		require.Equal(t, http.StatusOK, put.Code)

		get := f.do(t, http.MethodGet, "/api/v1/reports/2026-08-29/deep_read", nil)
		require.Equal(t, http.StatusOK, get.Code)
		assert.Equal(t, "# Deep Read", decodeMap(t, get)["content"])

		list := f.do(t, http.MethodGet, "/api/v1/reports/2026-08-29", nil)
		require.Equal(t, http.StatusOK, list.Code)
		assert.Equal(t, float64(1), decodeMap(t, list)["total_count"])

		del := f.do(t, http.MethodDelete, "/api/v1/reports/2026-08-29/deep_read", nil)
		require.Equal(t, http.StatusOK, del.Code)

		missing := f.do(t, http.MethodGet, "/api/v1/reports/2026-08-29/deep_read", nil)
		require.Equal(t, http.StatusNotFound, missing.Code)
	})

	t.Run("rejects empty content", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodPut, "/api/v1/reports/2026-08-29/deep_read", putReportRequest{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lists dates", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/reports", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), decodeMap(t, rec)["total_count"])
	})
}

func TestHealthEndpoints(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationIDEchoed(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "test-correlation-42")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, "test-correlation-42", rec.Header().Get("X-Correlation-ID"))
}
