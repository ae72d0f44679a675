package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-pipeline-service/internal/archive"
	"github.com/helixir/research-pipeline-service/internal/config"
	"github.com/helixir/research-pipeline-service/internal/domain"
	"github.com/helixir/research-pipeline-service/internal/feeds"
	"github.com/helixir/research-pipeline-service/internal/observability"
	"github.com/helixir/research-pipeline-service/internal/push"
)

// maxWorkers caps the per-cycle synthesis pool.
const maxWorkers = 4

// AcceptResult tells a caller why a cycle did or did not start.
type AcceptResult string

const (
	AcceptAccepted        AcceptResult = "accepted"
	AcceptAlreadyRunning  AcceptResult = "already_running"
	AcceptAlreadyRunToday AcceptResult = "already_run_today"
)

// Synthesizer generates one deep report per paper.
type Synthesizer interface {
	Synthesize(ctx context.Context, card domain.RunCard, prior domain.Report, figures []domain.Figure) (domain.Report, error)
}

// ArtifactResolver discovers and caches PDFs and figures.
type ArtifactResolver interface {
	CandidateURLs(ctx context.Context, paperID, landingURL string) []string
	DownloadFirstWorking(ctx context.Context, candidates []string, destPath string) (string, bool, error)
	FetchFigures(ctx context.Context, paperID, landingURL string) []domain.Figure
}

// ArtifactStore persists the rendered markdown for a run and the binary
// assets its cards reference.
type ArtifactStore interface {
	SaveRun(run *domain.Run) (map[string]string, error)
	SaveAsset(date string, data []byte, ext string) (string, error)
}

// Promoter moves one paper from the notable tier into the deep-report
// list of a stored run.
type Promoter interface {
	PromotePaper(ctx context.Context, date string, card domain.RunCard) error
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Archive     archive.Archive
	Fetcher     feeds.Fetcher
	Ranker      feeds.Ranker
	Synthesizer Synthesizer
	Resolver    ArtifactResolver
	Pusher      push.Pusher
	Artifacts   ArtifactStore
	Promoter    Promoter
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
}

// Orchestrator drives the daily cycle and owns the shared job state.
type Orchestrator struct {
	cfg      config.PipelineConfig
	feedsCfg config.FeedsConfig
	cacheDir string
	location *time.Location

	deps  Deps
	state *JobState

	wg sync.WaitGroup
}

// New creates an orchestrator. An unknown timezone falls back to UTC.
func New(cfg config.PipelineConfig, feedsCfg config.FeedsConfig, cacheDir string, deps Deps) *Orchestrator {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}
	return &Orchestrator{
		cfg:      cfg,
		feedsCfg: feedsCfg,
		cacheDir: cacheDir,
		location: loc,
		deps:     deps,
		state:    NewJobState(),
	}
}

// Today returns the current run date key in the configured timezone.
func (o *Orchestrator) Today() string {
	return time.Now().In(o.location).Format("2006-01-02")
}

// Status returns a snapshot of the job state.
func (o *Orchestrator) Status() domain.JobSnapshot {
	return o.state.Snapshot()
}

// Wait blocks until any in-flight cycle finishes. Used on shutdown and in
// tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// CycleOptions are per-trigger overrides for one cycle.
type CycleOptions struct {
	// MaxReports overrides the configured deep-read count when positive.
	MaxReports int
	// Keywords overrides the ranking keywords when non-empty.
	Keywords []string
	// Categories overrides the fetched categories when non-empty.
	Categories []string
}

// AcceptCycle starts a cycle for today unless one is running or today's
// run already exists. force skips the already-run-today check. A failed
// archive probe never blocks a cycle.
func (o *Orchestrator) AcceptCycle(ctx context.Context, force bool) AcceptResult {
	return o.AcceptCycleOptions(ctx, force, CycleOptions{})
}

// AcceptCycleOptions is AcceptCycle with per-cycle overrides.
func (o *Orchestrator) AcceptCycleOptions(ctx context.Context, force bool, opts CycleOptions) AcceptResult {
	date := o.Today()

	// A running cycle wins over the run-already-stored answer: once the
	// in-flight run lands its snapshot, a trigger during the tail of the
	// cycle must still report already_running.
	if o.state.Snapshot().Status == domain.JobStatusRunning {
		o.deps.Metrics.RecordCycleRejected(string(AcceptAlreadyRunning))
		return AcceptAlreadyRunning
	}

	if !force {
		if run, err := o.deps.Archive.GetRun(ctx, date); err == nil && run != nil {
			o.deps.Metrics.RecordCycleRejected(string(AcceptAlreadyRunToday))
			return AcceptAlreadyRunToday
		}
	}

	if !o.state.TryStart(date) {
		o.deps.Metrics.RecordCycleRejected(string(AcceptAlreadyRunning))
		return AcceptAlreadyRunning
	}

	pipeCfg := o.cfg
	if opts.MaxReports > 0 {
		pipeCfg.MaxReports = opts.MaxReports
	}
	feedsCfg := o.feedsCfg
	if len(opts.Keywords) > 0 {
		feedsCfg.Keywords = opts.Keywords
	}
	if len(opts.Categories) > 0 {
		feedsCfg.Categories = opts.Categories
	}

	o.deps.Metrics.RecordCycleStarted()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runCycle(context.WithoutCancel(ctx), date, pipeCfg, feedsCfg)
	}()
	return AcceptAccepted
}

// runCycle executes one full pipeline cycle. Per-paper failures degrade
// to empty reports; only failures before report generation (fetch, rank,
// archive unreachable) end the cycle in the error state.
func (o *Orchestrator) runCycle(ctx context.Context, date string, cfg config.PipelineConfig, feedsCfg config.FeedsConfig) {
	logger := observability.WithCycleContext(o.deps.Logger, date)
	started := time.Now()

	fail := func(stage string, err error) {
		msg := fmt.Sprintf("%s: %v", stage, err)
		logger.Error().Err(err).Str("stage", stage).Msg("cycle failed")
		o.state.AppendLog("cycle failed: %s", msg)
		o.state.FinishError(msg)
		o.deps.Metrics.RecordCycleFailed(time.Since(started).Seconds())
	}

	o.state.AppendLog("cycle started for %s", date)

	candidates, err := o.deps.Fetcher.Fetch(ctx, feedsCfg)
	if err != nil {
		fail("fetch candidates", err)
		return
	}
	o.state.AppendLog("fetched %d candidates", len(candidates))

	deep, notable := o.deps.Ranker.Rank(feedsCfg, candidates)

	maxReports := cfg.ClampedMaxReports()
	if len(deep) > maxReports {
		notable = append(deep[maxReports:], notable...)
		deep = deep[:maxReports]
	}
	o.state.SetCounts(len(deep)+len(notable), 0)
	o.state.AppendLog("selected %d deep reads, %d also notable", len(deep), len(notable))

	archiveSize, err := o.deps.Archive.Size(ctx)
	if err != nil {
		fail("probe archive", err)
		return
	}

	selected := o.synthesizeAll(ctx, logger, date, deep, archiveSize > 0)

	generated := 0
	for _, card := range selected {
		if card.Report.Document != "" {
			generated++
		}
	}
	o.state.SetCounts(len(selected)+len(notable), generated)

	for i := range notable {
		if err := o.deps.Archive.UpsertPaper(ctx, notable[i].Paper, domain.Report{}); err != nil {
			logger.Warn().Err(err).Str("paper_id", notable[i].PaperID).Msg("failed to archive notable paper")
			o.state.AppendLog("archive failed for notable %s", notable[i].PaperID)
		}
	}

	run := &domain.Run{
		Date:        date,
		ReportCards: selected,
		AlsoNotable: notable,
	}
	run.PushText = BuildPushText(run)

	if err := o.deps.Archive.StoreRun(ctx, run); err != nil {
		fail("store run", err)
		return
	}
	o.state.AppendLog("run stored with %d papers", len(selected)+len(notable))

	if o.deps.Artifacts != nil {
		if _, err := o.deps.Artifacts.SaveRun(run); err != nil {
			logger.Warn().Err(err).Msg("failed to save markdown artifacts")
			o.state.AppendLog("artifact save failed: %v", err)
		}
	}

	o.pushDigest(ctx, logger, run)

	o.state.AppendLog("cycle finished: %d reports", generated)
	o.state.FinishDone(len(selected)+len(notable), generated)
	o.deps.Metrics.RecordCycleCompleted(time.Since(started).Seconds())
}

// synthesizeAll fans the selected papers out to a bounded worker pool and
// reassembles results in dispatch order. A failed paper keeps its slot
// with an empty report.
func (o *Orchestrator) synthesizeAll(ctx context.Context, logger zerolog.Logger, date string, selected []domain.RunCard, archiveNonEmpty bool) []domain.RunCard {
	n := len(selected)
	if n == 0 {
		return nil
	}

	workers := maxWorkers
	if n < workers {
		workers = n
	}

	type job struct {
		idx  int
		card domain.RunCard
	}
	jobs := make(chan job)
	results := make([]domain.RunCard, n)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = o.processPaper(ctx, logger, date, j.card, archiveNonEmpty)
			}
		}()
	}
	for i, card := range selected {
		jobs <- job{idx: i, card: card}
	}
	close(jobs)
	wg.Wait()

	return results
}

// processPaper runs one paper through resolution, similarity, synthesis
// and archival. Every failure is contained to this paper.
func (o *Orchestrator) processPaper(ctx context.Context, logger zerolog.Logger, date string, card domain.RunCard, archiveNonEmpty bool) domain.RunCard {
	plog := observability.WithPaperContext(logger, card.PaperID)
	link := domain.BestLink(card.PaperID, card.Link)

	var figures []domain.Figure
	if o.deps.Resolver != nil {
		o.deps.Metrics.RecordDownloadAttempt()
		candidates := o.deps.Resolver.CandidateURLs(ctx, card.PaperID, link)
		dest := filepath.Join(o.cacheDir, cacheFileName(card.PaperID))
		if _, cached, err := o.deps.Resolver.DownloadFirstWorking(ctx, candidates, dest); err != nil {
			plog.Debug().Err(err).Msg("no working pdf candidate")
		} else {
			if cached {
				o.deps.Metrics.RecordDownloadCacheHit()
			} else {
				o.deps.Metrics.RecordDownloadSuccess()
			}
			card.PDFAsset = o.localizePDF(plog, date, dest)
		}

		figures = o.deps.Resolver.FetchFigures(ctx, card.PaperID, link)
	}
	card.Figures = figures

	if archiveNonEmpty {
		start := time.Now()
		similar, err := o.deps.Archive.FindSimilar(ctx, card.Title, card.Abstract, card.PaperID, o.cfg.SimilarLimit, o.cfg.MinSimilarity)
		if err != nil {
			plog.Warn().Err(err).Msg("similarity query failed")
			o.state.AppendLog("similarity failed for %s", card.PaperID)
		} else {
			card.Similar = similar
		}
		o.deps.Metrics.RecordSimilarityQuery(time.Since(start).Seconds())
	}

	// Feed text for generation; full-text extraction is not part of the
	// cycle, so the abstract stands in.
	if card.SourceContent == "" {
		card.SourceContent = card.Abstract
	}

	prior := card.Report
	if prior.Summary == "" {
		prior.Summary = shortSummary(card.Abstract)
	}

	report, err := o.deps.Synthesizer.Synthesize(ctx, card, prior, figures)
	if err != nil {
		plog.Warn().Err(err).Msg("report synthesis failed")
		o.state.AppendLog("synthesis failed for %s", card.PaperID)
		o.deps.Metrics.RecordReportFailed()
		card.Report = prior
	} else {
		card.Report = report
		if report.Degraded {
			o.deps.Metrics.RecordReportDegraded()
		} else {
			o.deps.Metrics.RecordReportGenerated()
		}
		o.state.AppendLog("report ready for %s", card.PaperID)
	}

	if err := o.deps.Archive.UpsertPaper(ctx, card.Paper, card.Report); err != nil {
		plog.Warn().Err(err).Msg("failed to archive paper")
		o.state.AppendLog("archive failed for %s", card.PaperID)
	}

	return card
}

// pushDigest attempts best-effort webhook delivery.
func (o *Orchestrator) pushDigest(ctx context.Context, logger zerolog.Logger, run *domain.Run) {
	if o.deps.Pusher == nil || o.cfg.WebhookURL == "" {
		return
	}

	payload := push.Payload{
		Date:                run.Date,
		TodayNewSummary:     fmt.Sprintf("%d deep reads", len(run.ReportCards)),
		WorthReadingSummary: fmt.Sprintf("%d also notable", len(run.AlsoNotable)),
	}
	ok, message := o.deps.Pusher.Push(ctx, o.cfg.WebhookURL, run.PushText, payload)
	outcome := "ok"
	if !ok {
		outcome = "failed"
		logger.Warn().Str("reason", message).Msg("digest push failed")
	}
	o.deps.Metrics.RecordPushAttempt(outcome)
	o.state.AppendLog("push %s: %s", outcome, message)
}

// Promote regenerates a notable paper's report and moves it into the
// deep-read list of the stored run. Idempotent per paper.
func (o *Orchestrator) Promote(ctx context.Context, date, paperID string) error {
	run, err := o.deps.Archive.GetRun(ctx, date)
	if err != nil {
		return err
	}

	for _, card := range run.ReportCards {
		if card.PaperID == paperID {
			return nil
		}
	}

	var target *domain.RunCard
	for i := range run.AlsoNotable {
		if run.AlsoNotable[i].PaperID == paperID {
			target = &run.AlsoNotable[i]
			break
		}
	}
	if target == nil {
		return domain.NewNotFoundError("paper", paperID)
	}

	archiveSize, err := o.deps.Archive.Size(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe archive: %w", err)
	}

	logger := observability.WithCycleContext(o.deps.Logger, date)
	card := o.processPaper(ctx, logger, date, *target, archiveSize > 0)

	if err := o.deps.Promoter.PromotePaper(ctx, date, card); err != nil {
		return err
	}

	if o.deps.Artifacts != nil {
		updated, err := o.deps.Archive.GetRun(ctx, date)
		if err == nil {
			if _, err := o.deps.Artifacts.SaveRun(updated); err != nil {
				logger.Warn().Err(err).Msg("failed to refresh markdown artifacts after promotion")
			}
		}
	}
	return nil
}

// localizePDF copies a downloaded PDF from the working cache into the
// date's content-hashed asset directory. Failures leave the card without
// an asset reference; the cached copy still feeds the cycle.
func (o *Orchestrator) localizePDF(logger zerolog.Logger, date, cachedPath string) string {
	if o.deps.Artifacts == nil {
		return ""
	}
	data, err := os.ReadFile(cachedPath)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read cached pdf")
		return ""
	}
	ref, err := o.deps.Artifacts.SaveAsset(date, data, ".pdf")
	if err != nil {
		logger.Warn().Err(err).Msg("failed to localize pdf asset")
		return ""
	}
	return ref
}

// cacheFileName maps a paper ID to a stable filename.
func cacheFileName(paperID string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return replacer.Replace(paperID) + ".pdf"
}

// shortSummary truncates an abstract for the digest.
func shortSummary(abstract string) string {
	const limit = 220
	abstract = strings.Join(strings.Fields(abstract), " ")
	runes := []rune(abstract)
	if len(runes) <= limit {
		return abstract
	}
	return string(runes[:limit-1]) + "…"
}
