package resolver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxLandingPageBytes bounds how much landing-page HTML is read when
// scraping for candidate links.
const maxLandingPageBytes = 4 * 1024 * 1024

// CandidateURLs produces an ordered, de-duplicated list of candidate
// document URLs for a paper. Identifier-scheme rules come first because
// they map deterministically to a PDF; scraping the landing page for
// citation metadata and PDF-suffixed links follows. Scrape failures
// degrade to whatever the scheme rules produced.
func (r *Resolver) CandidateURLs(ctx context.Context, paperID, landingURL string) []string {
	candidates := make([]string, 0, 4)
	seen := make(map[string]struct{})
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		candidates = append(candidates, u)
	}

	if id, ok := strings.CutPrefix(paperID, "arxiv:"); ok {
		add("https://arxiv.org/pdf/" + id)
	}

	if landingURL != "" {
		for _, u := range r.scrapeCandidates(ctx, landingURL) {
			add(u)
		}
	}

	return candidates
}

// scrapeCandidates fetches a landing page and extracts candidate PDF links:
// the citation_pdf_url meta tag scholarly publishers emit, then any anchor
// whose path ends in .pdf. Relative URLs resolve against the final
// post-redirect URL.
func (r *Resolver) scrapeCandidates(ctx context.Context, landingURL string) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, landingURL, nil)
	if err != nil {
		return nil
	}
	resp, err := r.fetch(req, "text/html, */*;q=0.8")
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	base := resp.Request.URL
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxLandingPageBytes))
	if err != nil {
		return nil
	}

	var found []string
	doc.Find(`meta[name="citation_pdf_url"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			if u := resolveRef(base, content); u != "" {
				found = append(found, u)
			}
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u := resolveRef(base, href)
		if u == "" {
			return
		}
		if parsed, err := url.Parse(u); err == nil &&
			strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf") {
			found = append(found, u)
		}
	})

	return found
}

// resolveRef resolves a possibly-relative reference against the page URL,
// keeping only http(s) results.
func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}
