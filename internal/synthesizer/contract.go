package synthesizer

import (
	"fmt"
	"regexp"
	"strings"
)

// tagsPrefix marks the machine-parsable first line of a generated document.
const tagsPrefix = "TAGS:"

// requiredSections are the six headings a generated review must contain,
// in the order the prompt requests them.
var requiredSections = []string{
	"AI Summary",
	"Abstract",
	"Method Details",
	"Summary",
	"Future Direction",
	"Pros and Cons",
}

// sectionMinLength is the minimum de-markdowned character count per
// section. Anything shorter reads as a stub, not a review.
var sectionMinLength = map[string]int{
	"AI Summary":       100,
	"Abstract":         180,
	"Method Details":   420,
	"Summary":          120,
	"Future Direction": 100,
	"Pros and Cons":    140,
}

var (
	mdImagePattern    = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	mdLinkPattern     = regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`)
	mdCodePattern     = regexp.MustCompile("(?s)`{1,3}.*?`{1,3}")
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	mdMarkupPattern   = regexp.MustCompile(`[*_>#-]`)
	spaceRunPattern   = regexp.MustCompile(`\s+`)
	sectionHeadingRe  = regexp.MustCompile(`^##\s+(.+)$`)
	titleNoisePattern = regexp.MustCompile(`[^\w\s&]`)
)

// stripMarkdown reduces markdown to plain text for length measurement.
func stripMarkdown(s string) string {
	s = mdImagePattern.ReplaceAllString(s, " ")
	s = mdLinkPattern.ReplaceAllString(s, " ")
	s = mdCodePattern.ReplaceAllString(s, " ")
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = mdMarkupPattern.ReplaceAllString(s, " ")
	s = spaceRunPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// parseTagLine splits a leading TAGS: line off a generated document,
// returning the parsed tags and the remaining body. Documents without a
// tag line come back unchanged.
func parseTagLine(text string) ([]string, string) {
	firstLine, rest, _ := strings.Cut(text, "\n")
	if !strings.HasPrefix(firstLine, tagsPrefix) {
		return nil, text
	}
	var tags []string
	for _, raw := range strings.Split(strings.TrimPrefix(firstLine, tagsPrefix), ",") {
		if t := strings.TrimSpace(raw); t != "" {
			tags = append(tags, t)
		}
	}
	return tags, strings.TrimLeft(rest, "\n")
}

// splitSections breaks a document into its ## sections, keyed by the
// normalized heading title. Content before the first heading is dropped.
func splitSections(text string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = buf.String()
		}
		buf.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		if m := sectionHeadingRe.FindStringSubmatch(line); m != nil {
			flush()
			current = normalizeTitle(m[1])
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return sections
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(titleNoisePattern.ReplaceAllString(title, "")))
}

// ValidateDocument checks a candidate document body against the
// completeness contract: every required section present, each section's
// plain text meeting its minimum length, and explicit Pros/Cons
// subheadings. A leading TAGS: line is ignored for the check. Returns
// false with a human-readable reason on the first violation.
func ValidateDocument(text string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return false, "empty output"
	}
	_, body := parseTagLine(text)

	sections := splitSections(body)
	for _, sec := range requiredSections {
		content, ok := sections[normalizeTitle(sec)]
		if !ok {
			return false, fmt.Sprintf("missing section: %s", sec)
		}
		pure := stripMarkdown(content)
		if len(pure) < sectionMinLength[sec] {
			return false, fmt.Sprintf("section too short: %s (%d chars)", sec, len(pure))
		}
	}

	pc := sections[normalizeTitle("Pros and Cons")]
	if !strings.Contains(pc, "### Pros") || !strings.Contains(pc, "### Cons") {
		return false, "missing Pros/Cons subsections"
	}
	return true, ""
}
