package reports

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

// RenderDigest produces the per-date overview document: deep reads with
// their short summaries and links to the stored reports, then the
// also-notable papers grouped by venue. slugs maps paper IDs to stored
// report filenames; papers without a stored report are listed unlinked.
func RenderDigest(run *domain.Run, slugs map[string]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Digest · %s\n\n", run.Date)
	fmt.Fprintf(&b, "**%d deep reads · %d also notable**\n\n", len(run.ReportCards), len(run.AlsoNotable))

	if len(run.ReportCards) > 0 {
		b.WriteString("## Deep Reads\n\n")
		for i, card := range run.ReportCards {
			writeDeepEntry(&b, i+1, card, slugs[card.PaperID])
		}
	}

	if len(run.AlsoNotable) > 0 {
		b.WriteString("## Also Notable\n\n")
		writeNotableByVenue(&b, run.AlsoNotable)
	}

	return b.String()
}

func writeDeepEntry(b *strings.Builder, ordinal int, card domain.RunCard, slug string) {
	title := card.Title
	if slug != "" {
		title = fmt.Sprintf("[%s](%s.md)", card.Title, slug)
	}
	fmt.Fprintf(b, "### %d. %s\n\n", ordinal, title)

	venue := card.Venue
	if venue == "" {
		venue = "Unknown venue"
	}
	line := fmt.Sprintf("*%s* · %s", venue, card.PublicationDate)
	if link := domain.BestLink(card.PaperID, card.Link); link != "" {
		line += fmt.Sprintf(" · [source](%s)", link)
	}
	b.WriteString(line + "\n\n")

	if card.Report.Scores != nil {
		fmt.Fprintf(b, "Score: **%.1f / 100**\n\n", card.Report.Scores.Overall)
	}
	if card.Report.Summary != "" {
		b.WriteString(card.Report.Summary + "\n\n")
	}
	if len(card.Similar) > 0 {
		b.WriteString("Related coverage:\n")
		for _, sp := range card.Similar {
			fmt.Fprintf(b, "- **%.2f** · %s\n", sp.Score, sp.Title)
		}
		b.WriteString("\n")
	}
}

func writeNotableByVenue(b *strings.Builder, cards []domain.RunCard) {
	byVenue := make(map[string][]domain.RunCard)
	for _, card := range cards {
		venue := card.Venue
		if venue == "" {
			venue = "Unknown venue"
		}
		byVenue[venue] = append(byVenue[venue], card)
	}

	venues := make([]string, 0, len(byVenue))
	for venue := range byVenue {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	for _, venue := range venues {
		fmt.Fprintf(b, "### %s\n\n", venue)
		for _, card := range byVenue[venue] {
			if link := domain.BestLink(card.PaperID, card.Link); link != "" {
				fmt.Fprintf(b, "- [%s](%s)", card.Title, link)
			} else {
				fmt.Fprintf(b, "- %s", card.Title)
			}
			if card.PublicationDate != "" {
				fmt.Fprintf(b, " · %s", card.PublicationDate)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}
