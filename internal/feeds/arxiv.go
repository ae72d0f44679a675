package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/research-pipeline-service/internal/config"
	"github.com/helixir/research-pipeline-service/internal/domain"
)

const (
	// DefaultArXivBaseURL is the default arXiv API base URL.
	DefaultArXivBaseURL = "https://export.arxiv.org/api"

	// defaultMaxResults bounds one cycle's candidate fetch.
	defaultMaxResults = 50

	// defaultWindowDays is how far back candidates are accepted.
	defaultWindowDays = 3

	// maxFeedBytes bounds the Atom response body.
	maxFeedBytes = 10 << 20

	arxivVenue = "arXiv"
)

// arxivIDPattern extracts the bare arXiv ID from an Atom entry URL such
// as "http://arxiv.org/abs/2401.12345v2" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDPattern = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// atomFeed mirrors the arXiv Atom API response.
type atomFeed struct {
	XMLName      xml.Name    `xml:"feed"`
	TotalResults int         `xml:"totalResults"`
	Entries      []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID              string         `xml:"id"`
	Title           string         `xml:"title"`
	Summary         string         `xml:"summary"`
	Published       string         `xml:"published"`
	Updated         string         `xml:"updated"`
	PrimaryCategory atomCategory   `xml:"primary_category"`
	Categories      []atomCategory `xml:"category"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// ArXivFetcher queries the arXiv Atom API for recent candidates.
type ArXivFetcher struct {
	httpClient *HTTPClient
	now        func() time.Time
}

var _ Fetcher = (*ArXivFetcher)(nil)

// NewArXivFetcher creates an arXiv fetcher sharing one rate-limited client
// across cycles.
func NewArXivFetcher(cfg config.FeedsConfig) *ArXivFetcher {
	return &ArXivFetcher{
		httpClient: NewHTTPClient(HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		}),
		now: time.Now,
	}
}

// NewArXivFetcherWithClient creates a fetcher with a custom HTTP client.
// Useful for testing against a mock server.
func NewArXivFetcherWithClient(httpClient *HTTPClient) *ArXivFetcher {
	return &ArXivFetcher{httpClient: httpClient, now: time.Now}
}

// Fetch queries the configured categories and returns candidates
// published inside the date window, newest first.
func (f *ArXivFetcher) Fetch(ctx context.Context, cfg config.FeedsConfig) ([]domain.RunCard, error) {
	searchURL, err := f.buildSearchURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(arxivVenue, resp.StatusCode, string(body), nil)
	}

	var feed atomFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	cutoff := f.now().UTC().AddDate(0, 0, -windowDays)

	cards := make([]domain.RunCard, 0, len(feed.Entries))
	for i := range feed.Entries {
		card, ok := f.entryToCard(&feed.Entries[i], cutoff)
		if ok {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

// buildSearchURL constructs the arXiv query: category filter, newest
// first, bounded result count.
func (f *ArXivFetcher) buildSearchURL(cfg config.FeedsConfig) (string, error) {
	base := cfg.ArXivBaseURL
	if base == "" {
		base = DefaultArXivBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/query"

	var searchQuery string
	if len(cfg.Categories) > 0 {
		terms := make([]string, 0, len(cfg.Categories))
		for _, cat := range cfg.Categories {
			cat = strings.TrimSpace(cat)
			if cat != "" {
				terms = append(terms, "cat:"+cat)
			}
		}
		searchQuery = strings.Join(terms, " OR ")
	}
	if searchQuery == "" {
		searchQuery = "all:electron"
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	query := url.Values{}
	query.Set("search_query", searchQuery)
	query.Set("max_results", strconv.Itoa(maxResults))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// entryToCard converts one Atom entry into a candidate card. Entries
// without a parsable ID or published before the cutoff are dropped.
func (f *ArXivFetcher) entryToCard(entry *atomEntry, cutoff time.Time) (domain.RunCard, bool) {
	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		return domain.RunCard{}, false
	}

	var pubDate string
	if entry.Published != "" {
		t, err := time.Parse(time.RFC3339, entry.Published)
		if err != nil || t.Before(cutoff) {
			return domain.RunCard{}, false
		}
		pubDate = t.UTC().Format("2006-01-02")
	}

	venue := arxivVenue
	if entry.PrimaryCategory.Term != "" {
		venue = fmt.Sprintf("%s (%s)", arxivVenue, entry.PrimaryCategory.Term)
	}

	return domain.RunCard{
		Paper: domain.Paper{
			PaperID:         "arxiv:" + arxivID,
			Title:           normalizeWhitespace(entry.Title),
			Abstract:        normalizeWhitespace(entry.Summary),
			Venue:           venue,
			PublicationDate: pubDate,
		},
		Link: "https://arxiv.org/abs/" + arxivID,
	}, true
}

func extractArXivID(entryURL string) string {
	matches := arxivIDPattern.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace trims and collapses runs of whitespace. arXiv
// titles and abstracts arrive with embedded newlines and indentation.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
