package pipeline

import (
	"fmt"
	"strings"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

// BuildPushText renders the webhook digest: header, numbered deep reads
// with their short summaries and related coverage, then the also-notable
// titles.
func BuildPushText(run *domain.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📚 Research Digest · %s\n", run.Date)
	fmt.Fprintf(&b, "%d deep reads · %d also notable\n", len(run.ReportCards), len(run.AlsoNotable))

	if len(run.ReportCards) > 0 {
		b.WriteString("\n🔬 Deep Reads\n")
		for i, card := range run.ReportCards {
			fmt.Fprintf(&b, "%d. %s", i+1, card.Title)
			if card.Venue != "" {
				fmt.Fprintf(&b, " (%s)", card.Venue)
			}
			b.WriteString("\n")

			if link := domain.BestLink(card.PaperID, card.Link); link != "" {
				fmt.Fprintf(&b, "   %s\n", link)
			}
			if card.Report.Summary != "" {
				fmt.Fprintf(&b, "   %s\n", card.Report.Summary)
			}
			if card.Report.Degraded {
				b.WriteString("   ⚠️ fallback summary (generation unavailable)\n")
			}
			for _, sp := range card.Similar {
				fmt.Fprintf(&b, "   ↳ related (%.2f): %s\n", sp.Score, sp.Title)
			}
		}
	}

	if len(run.AlsoNotable) > 0 {
		b.WriteString("\n📌 Also Notable\n")
		for _, card := range run.AlsoNotable {
			fmt.Fprintf(&b, "• %s", card.Title)
			if card.Venue != "" {
				fmt.Fprintf(&b, " (%s)", card.Venue)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
