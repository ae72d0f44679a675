// Package reports persists rendered markdown artifacts on disk, one
// directory per run date. Filenames are derived from paper titles through
// a conservative slug so paths never depend on user-controlled bytes.
package reports

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

const (
	// maxSlugLength bounds generated filenames.
	maxSlugLength = 60

	// fallbackSlug names a report whose title yields no usable characters.
	fallbackSlug = "paper"

	// digestName is the per-date overview file.
	digestName = "digest.md"

	// assetsDirName holds content-addressed images under each date.
	assetsDirName = "assets"
)

var (
	slugNoisePattern    = regexp.MustCompile(`[^a-z0-9\s_-]`)
	slugSeparatorRuns   = regexp.MustCompile(`[\s_-]+`)
	datePattern         = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	storedSlugPattern   = regexp.MustCompile(`^[a-z0-9_]+$`)
	errInvalidDate      = domain.NewValidationError("date", "must be YYYY-MM-DD")
	errInvalidSlug      = domain.NewValidationError("slug", "must be a generated slug")
	errEmptyArtifact    = domain.NewValidationError("content", "must not be empty")
	errInvalidExtension = domain.NewValidationError("ext", "unsupported asset extension")
)

// assetExtensions lists the asset types the store accepts: localized
// figure images plus the source PDFs a cycle downloads.
var assetExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".pdf": {},
}

// SafeSlug derives a filesystem-safe name from a title: lowercase, noise
// characters removed, separator runs collapsed to underscores, bounded
// length.
func SafeSlug(title string) string {
	s := strings.ToLower(title)
	s = slugNoisePattern.ReplaceAllString(s, "")
	s = slugSeparatorRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxSlugLength {
		s = strings.Trim(s[:maxSlugLength], "_")
	}
	if s == "" {
		return fallbackSlug
	}
	return s
}

// Store writes and serves markdown artifacts under one root directory.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore creates a report store rooted at dir.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{
		root:   dir,
		logger: logger.With().Str("component", "reports").Logger(),
	}
}

// SaveRun writes every deep-read document plus the digest for the run's
// date, replacing whatever was there. Returns the slugs written, keyed by
// paper ID.
func (s *Store) SaveRun(run *domain.Run) (map[string]string, error) {
	if run == nil || !datePattern.MatchString(run.Date) {
		return nil, errInvalidDate
	}

	dir := filepath.Join(s.root, run.Date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	slugs := make(map[string]string, len(run.ReportCards))
	used := make(map[string]int)
	for _, card := range run.ReportCards {
		if card.Report.Document == "" {
			continue
		}
		slug := uniqueSlug(SafeSlug(card.Title), used)
		path := filepath.Join(dir, slug+".md")
		if err := os.WriteFile(path, []byte(card.Report.Document), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write report %s: %w", slug, err)
		}
		slugs[card.PaperID] = slug
	}

	digest := RenderDigest(run, slugs)
	if err := os.WriteFile(filepath.Join(dir, digestName), []byte(digest), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write digest: %w", err)
	}

	s.logger.Info().Str("date", run.Date).Int("reports", len(slugs)).Msg("run artifacts saved")
	return slugs, nil
}

// uniqueSlug suffixes duplicate slugs so two same-titled papers never
// overwrite each other within a date.
func uniqueSlug(slug string, used map[string]int) string {
	n := used[slug]
	used[slug] = n + 1
	if n == 0 {
		return slug
	}
	return fmt.Sprintf("%s_%d", slug, n+1)
}

// SaveReport writes one document under an existing or new date directory.
func (s *Store) SaveReport(date, slug, content string) error {
	if !datePattern.MatchString(date) {
		return errInvalidDate
	}
	if !storedSlugPattern.MatchString(slug) {
		return errInvalidSlug
	}
	if strings.TrimSpace(content) == "" {
		return errEmptyArtifact
	}

	dir := filepath.Join(s.root, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, slug+".md"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// SaveAsset stores a binary asset under the date's assets directory, named by
// content hash so identical payloads deduplicate naturally. Returns the
// path relative to the date directory.
func (s *Store) SaveAsset(date string, data []byte, ext string) (string, error) {
	if !datePattern.MatchString(date) {
		return "", errInvalidDate
	}
	ext = strings.ToLower(ext)
	if _, ok := assetExtensions[ext]; !ok {
		return "", errInvalidExtension
	}
	if len(data) == 0 {
		return "", errEmptyArtifact
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:])[:16] + ext

	dir := filepath.Join(s.root, date, assetsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return filepath.Join(assetsDirName, name), nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}
	return filepath.Join(assetsDirName, name), nil
}

// ListDates returns the run dates with artifacts, newest first.
func (s *Store) ListDates() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list report dates: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() && datePattern.MatchString(e.Name()) {
			dates = append(dates, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// ListReports returns the report slugs stored for a date, sorted, with
// the digest excluded.
func (s *Store) ListReports(date string) ([]string, error) {
	if !datePattern.MatchString(date) {
		return nil, errInvalidDate
	}

	entries, err := os.ReadDir(filepath.Join(s.root, date))
	if os.IsNotExist(err) {
		return nil, domain.NewNotFoundError("report date", date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	var slugs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || name == digestName {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(slugs)
	return slugs, nil
}

// GetReport reads one stored document. The digest is addressed by the
// slug "digest".
func (s *Store) GetReport(date, slug string) (string, error) {
	if !datePattern.MatchString(date) {
		return "", errInvalidDate
	}
	if !storedSlugPattern.MatchString(slug) {
		return "", errInvalidSlug
	}

	data, err := os.ReadFile(filepath.Join(s.root, date, slug+".md"))
	if os.IsNotExist(err) {
		return "", domain.NewNotFoundError("report", date+"/"+slug)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}

// DeleteReport removes one stored document.
func (s *Store) DeleteReport(date, slug string) error {
	if !datePattern.MatchString(date) {
		return errInvalidDate
	}
	if !storedSlugPattern.MatchString(slug) {
		return errInvalidSlug
	}

	err := os.Remove(filepath.Join(s.root, date, slug+".md"))
	if os.IsNotExist(err) {
		return domain.NewNotFoundError("report", date+"/"+slug)
	}
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// DeleteDate removes a whole date directory, assets included.
func (s *Store) DeleteDate(date string) error {
	if !datePattern.MatchString(date) {
		return errInvalidDate
	}
	dir := filepath.Join(s.root, date)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return domain.NewNotFoundError("report date", date)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete report date: %w", err)
	}
	return nil
}
