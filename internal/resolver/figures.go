package resolver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

const maxCaptionLength = 200

// Vocabulary used to classify a figure by its caption and alt text.
var (
	methodVocab = []string{
		"architecture", "framework", "pipeline", "overview", "diagram",
		"workflow", "schematic", "module", "structure", "illustration",
		"approach",
	}
	resultVocab = []string{
		"result", "performance", "accuracy", "comparison", "ablation",
		"benchmark", "curve", "distribution", "score", "evaluation",
	}

	// decorativePattern matches asset filenames that are site chrome, not
	// paper content.
	decorativePattern = regexp.MustCompile(`(?i)(logo|icon|badge|sprite|avatar|banner|button|arrow|spinner|loading)`)

	markdownImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// FetchFigures retrieves paper HTML and extracts classified figures.
// arXiv identifiers go through the ar5iv HTML rendering; everything else
// uses the landing page. Failures yield an empty list.
func (r *Resolver) FetchFigures(ctx context.Context, paperID, landingURL string) []domain.Figure {
	pageURL := landingURL
	if id, ok := strings.CutPrefix(paperID, "arxiv:"); ok {
		pageURL = "https://ar5iv.org/html/" + id
	}
	if pageURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil
	}
	resp, err := r.fetch(req, "text/html, */*;q=0.8")
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	html, err := io.ReadAll(io.LimitReader(resp.Body, maxLandingPageBytes))
	if err != nil {
		return nil
	}
	return r.ExtractFigures(string(html), resp.Request.URL, r.maxFigures)
}

// ExtractFigures pulls figure references out of paper HTML or markdown.
// Decorative assets are filtered by filename and declared size; the rest
// are classified by caption vocabulary and ranked so method figures come
// before result figures before unclassified ones. At most max figures are
// returned.
func (r *Resolver) ExtractFigures(content string, base *url.URL, max int) []domain.Figure {
	if max <= 0 {
		max = r.maxFigures
	}

	figures := make([]domain.Figure, 0, max)
	seen := make(map[string]struct{})
	add := func(src, caption string) {
		u := resolveRef(base, src)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		caption = strings.TrimSpace(whitespacePattern.ReplaceAllString(caption, " "))
		if len(caption) > maxCaptionLength {
			caption = caption[:maxCaptionLength]
		}
		fig := domain.Figure{URL: u, Caption: caption}
		fig.Kind, fig.Rank = classifyFigure(caption, u)
		figures = append(figures, fig)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err == nil {
		doc.Find("figure").Each(func(_ int, fig *goquery.Selection) {
			img := fig.Find("img").First()
			src, ok := img.Attr("src")
			if !ok || isDecorative(img, src) {
				return
			}
			caption := fig.Find("figcaption").First().Text()
			if caption == "" {
				caption, _ = img.Attr("alt")
			}
			add(src, caption)
		})
		if len(figures) == 0 {
			doc.Find("img").Each(func(_ int, img *goquery.Selection) {
				src, ok := img.Attr("src")
				if !ok || isDecorative(img, src) {
					return
				}
				alt, _ := img.Attr("alt")
				add(src, alt)
			})
		}
	}

	// Markdown-sourced content has no DOM to walk.
	for _, m := range markdownImagePattern.FindAllStringSubmatch(content, -1) {
		add(m[2], m[1])
	}

	// Social-preview image as a last resort.
	if len(figures) == 0 && doc != nil {
		for _, sel := range []string{
			`meta[property="og:image"]`, `meta[name="twitter:image"]`,
		} {
			if preview, ok := doc.Find(sel).First().Attr("content"); ok {
				add(preview, "Figure")
				break
			}
		}
	}

	sort.SliceStable(figures, func(i, j int) bool {
		return figures[i].Rank > figures[j].Rank
	})
	if len(figures) > max {
		figures = figures[:max]
	}
	return figures
}

// isDecorative filters site chrome: tiny declared dimensions and asset
// names like logos and icons.
func isDecorative(img *goquery.Selection, src string) bool {
	if strings.HasPrefix(src, "data:") {
		return true
	}
	if decorativePattern.MatchString(src) {
		return true
	}
	for _, attr := range []string{"width", "height"} {
		if v, ok := img.Attr(attr); ok {
			if n, err := strconv.Atoi(strings.TrimSuffix(v, "px")); err == nil && n > 0 && n < 64 {
				return true
			}
		}
	}
	return false
}

// classifyFigure decides what a figure depicts from its caption and URL.
// Method figures outrank result figures; anything unclassified sorts last.
func classifyFigure(caption, src string) (domain.FigureKind, float64) {
	probe := strings.ToLower(caption + " " + src)
	for _, w := range methodVocab {
		if strings.Contains(probe, w) {
			return domain.FigureKindMethod, 2
		}
	}
	for _, w := range resultVocab {
		if strings.Contains(probe, w) {
			return domain.FigureKindResult, 1
		}
	}
	return domain.FigureKindUnknown, 0
}
