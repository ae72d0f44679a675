package synthesizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

var (
	inlineMathPattern  = regexp.MustCompile(`(?s)\\\((.+?)\\\)`)
	displayMathPattern = regexp.MustCompile(`(?s)\\\[(.+?)\\\]`)

	imageRefPattern   = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)
	figureNumPattern  = regexp.MustCompile(`(?i)fig(?:ure)?\.?\s*(\d+)`)
	methodHeadingLine = regexp.MustCompile(`(?m)^##\s+Method Details[^\n]*\n`)
)

// NormalizeMathDelimiters converts LaTeX delimiters to the markdown math
// delimiters renderers expect: \(..\) to $..$ and \[..\] to $$..$$.
func NormalizeMathDelimiters(text string) string {
	text = inlineMathPattern.ReplaceAllString(text, `$$$1$$`)
	text = displayMathPattern.ReplaceAllString(text, `$$$$$1$$$$`)
	return text
}

// RepairImageRefs substitutes real figure URLs for image references whose
// URL is missing or a placeholder. A figure-number mention in the
// reference's caption picks the matching supplied figure; otherwise the
// best-ranked not-yet-used figure fills in. References that cannot be
// repaired are left alone.
func RepairImageRefs(body string, figures []domain.Figure) string {
	if len(figures) == 0 {
		return body
	}
	used := make(map[string]struct{})
	for _, m := range imageRefPattern.FindAllStringSubmatch(body, -1) {
		if isRealImageURL(m[2]) {
			used[m[2]] = struct{}{}
		}
	}

	nextUnused := func() *domain.Figure {
		for i := range figures {
			if _, taken := used[figures[i].URL]; !taken {
				return &figures[i]
			}
		}
		return nil
	}

	return imageRefPattern.ReplaceAllStringFunc(body, func(ref string) string {
		m := imageRefPattern.FindStringSubmatch(ref)
		caption, target := m[1], m[2]
		if isRealImageURL(target) {
			return ref
		}
		var pick *domain.Figure
		if num := figureNumPattern.FindStringSubmatch(caption); num != nil {
			if n, err := strconv.Atoi(num[1]); err == nil && n >= 1 && n <= len(figures) {
				pick = &figures[n-1]
			}
		}
		if pick == nil {
			pick = nextUnused()
		}
		if pick == nil {
			return ref
		}
		used[pick.URL] = struct{}{}
		return fmt.Sprintf("![%s](%s)", caption, pick.URL)
	})
}

func isRealImageURL(u string) bool {
	u = strings.TrimSpace(u)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// ForceInsertFigures embeds up to two supplied figures right after the
// Method Details heading when the generated body references no images at
// all. Generation is asked to embed figures inline; this is the backstop
// for when it ignores that instruction.
func ForceInsertFigures(body string, figures []domain.Figure) string {
	if len(figures) == 0 || strings.Contains(body, "![") {
		return body
	}
	n := len(figures)
	if n > 2 {
		n = 2
	}
	lines := make([]string, 0, n)
	for i, fig := range figures[:n] {
		caption := fig.Caption
		if caption == "" {
			caption = fmt.Sprintf("Figure %d", i+1)
		}
		lines = append(lines, fmt.Sprintf("![%s](%s)", caption, fig.URL))
	}
	block := strings.Join(lines, "\n\n")

	if loc := methodHeadingLine.FindStringIndex(body); loc != nil {
		return body[:loc[1]] + "\n" + block + "\n\n" + body[loc[1]:]
	}
	return body + "\n\n" + block + "\n"
}
