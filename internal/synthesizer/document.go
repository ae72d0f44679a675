package synthesizer

import (
	"fmt"
	"strings"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

// relatedHeading titles the appended prior-coverage section.
const relatedHeading = "## Related Articles (Previously Summarized)"

// BuildDocument wraps a generated (or template) body into the final
// markdown document: YAML frontmatter, title block, score table, body and
// the related-papers section.
func BuildDocument(card domain.RunCard, body string, tags []string, similar []domain.SimilarPaper) string {
	var b strings.Builder

	writeFrontmatter(&b, card, tags)

	fmt.Fprintf(&b, "# %s\n\n", card.Title)

	venue := card.Venue
	if venue == "" {
		venue = "Unknown venue"
	}
	link := domain.BestLink(card.PaperID, card.Link)
	fmt.Fprintf(&b, "> **%s** · %s", venue, card.PublicationDate)
	if link != "" {
		fmt.Fprintf(&b, " · [Full Text →](%s)", link)
	}
	b.WriteString("\n\n")

	if table := scoreTable(card.Report.Scores); table != "" {
		b.WriteString(table)
		b.WriteString("\n")
	}

	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")

	if section := relatedSection(similar); section != "" {
		b.WriteString("\n")
		b.WriteString(section)
	}

	return b.String()
}

// writeFrontmatter emits the YAML header. Double quotes inside the title
// are swapped for single quotes so the quoted scalar stays valid.
func writeFrontmatter(b *strings.Builder, card domain.RunCard, tags []string) {
	title := strings.ReplaceAll(card.Title, `"`, "'")
	link := domain.BestLink(card.PaperID, card.Link)

	b.WriteString("---\n")
	fmt.Fprintf(b, "title: \"%s\"\n", title)
	if card.Venue != "" {
		fmt.Fprintf(b, "journal: \"%s\"\n", strings.ReplaceAll(card.Venue, `"`, "'"))
	}
	if card.PublicationDate != "" {
		fmt.Fprintf(b, "date: \"%s\"\n", card.PublicationDate)
	}
	if link != "" {
		fmt.Fprintf(b, "link: \"%s\"\n", link)
	}
	if card.PaperID != "" {
		fmt.Fprintf(b, "paper_id: \"%s\"\n", card.PaperID)
	}
	if len(tags) > 0 {
		quoted := make([]string, len(tags))
		for i, t := range tags {
			quoted[i] = fmt.Sprintf("\"%s\"", strings.ReplaceAll(t, `"`, "'"))
		}
		fmt.Fprintf(b, "tags: [%s]\n", strings.Join(quoted, ", "))
	}
	b.WriteString("---\n\n")
}

// scoreTable renders the four ranking dimensions as a bar-chart table.
// Scores are on a 0-100 scale; each full block covers ten points.
func scoreTable(scores *domain.ScoreCard) string {
	if scores == nil {
		return ""
	}
	rows := []struct {
		name  string
		score domain.Score
	}{
		{"Relevance", scores.Relevance},
		{"Novelty", scores.Novelty},
		{"Rigor", scores.Rigor},
		{"Impact", scores.Impact},
	}

	var b strings.Builder
	b.WriteString("| Dimension | Score | Value | Why |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s | %d | %s |\n",
			row.name, scoreBar(row.score.Value), int(row.score.Value), tableCell(row.score.Reason))
	}
	fmt.Fprintf(&b, "\n**Overall: %.1f / 100**\n", scores.Overall)
	return b.String()
}

// scoreBar draws a ten-block bar for a 0-100 value.
func scoreBar(value float64) string {
	filled := int(value) / 10
	if filled < 0 {
		filled = 0
	}
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

// tableCell makes text safe for a markdown table cell.
func tableCell(text string) string {
	text = strings.ReplaceAll(text, "|", "/")
	return strings.Join(strings.Fields(text), " ")
}

// relatedSection lists previously archived papers similar to this one.
func relatedSection(similar []domain.SimilarPaper) string {
	if len(similar) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(relatedHeading)
	b.WriteString("\n\n")
	for _, sp := range similar {
		venue := sp.Venue
		if venue == "" {
			venue = "Unknown venue"
		}
		link := domain.BestLink(sp.PaperID, "")
		if link != "" {
			fmt.Fprintf(&b, "- **%.2f** · [%s](%s) — *%s* · %s\n", sp.Score, sp.Title, link, venue, sp.PublicationDate)
		} else {
			fmt.Fprintf(&b, "- **%.2f** · %s — *%s* · %s\n", sp.Score, sp.Title, venue, sp.PublicationDate)
		}
		if sp.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", sp.Summary)
		}
	}
	return b.String()
}
