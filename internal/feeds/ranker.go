package feeds

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/helixir/research-pipeline-service/internal/config"
	"github.com/helixir/research-pipeline-service/internal/domain"
)

// deepThreshold is the overall score a candidate must clear for the
// deep-report tier. The best candidate is promoted regardless so a cycle
// always has at least one deep read when any candidate exists.
const deepThreshold = 60.0

// rigorVocab marks abstracts that describe an actual evaluation.
var rigorVocab = []string{
	"benchmark", "experiment", "ablation", "dataset", "evaluat",
	"baseline", "state-of-the-art", "statistically", "empirical",
}

// HeuristicRanker scores candidates without any model call. Relevance
// comes from keyword overlap, novelty from recency, rigor from
// evaluation vocabulary, impact from venue and keyword density.
type HeuristicRanker struct {
	now func() time.Time
}

var _ Ranker = (*HeuristicRanker)(nil)

// NewHeuristicRanker creates a ranker using wall-clock recency.
func NewHeuristicRanker() *HeuristicRanker {
	return &HeuristicRanker{now: time.Now}
}

// Rank scores every candidate, sorts descending by overall score and
// splits into tiers. Equal scores keep their fetch order.
func (r *HeuristicRanker) Rank(cfg config.FeedsConfig, candidates []domain.RunCard) (deep, notable []domain.RunCard) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ranked := make([]domain.RunCard, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		scores := r.score(cfg, &ranked[i])
		ranked[i].Report.Scores = &scores
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Report.Scores.Overall > ranked[j].Report.Scores.Overall
	})

	for _, card := range ranked {
		if card.Report.Scores.Overall >= deepThreshold {
			deep = append(deep, card)
		} else {
			notable = append(notable, card)
		}
	}
	if len(deep) == 0 {
		deep = ranked[:1]
		notable = ranked[1:]
	}
	return deep, notable
}

func (r *HeuristicRanker) score(cfg config.FeedsConfig, card *domain.RunCard) domain.ScoreCard {
	text := strings.ToLower(card.Title + " " + card.Abstract)

	relevance, matched := r.scoreRelevance(cfg.Keywords, text)
	novelty := r.scoreNovelty(card.PublicationDate)
	rigor := r.scoreRigor(card.Abstract, text)
	impact := r.scoreImpact(card.Venue, matched)

	overall := 0.40*relevance.Value + 0.25*novelty.Value + 0.20*rigor.Value + 0.15*impact.Value

	return domain.ScoreCard{
		Relevance: relevance,
		Novelty:   novelty,
		Rigor:     rigor,
		Impact:    impact,
		Overall:   overall,
	}
}

// scoreRelevance counts configured keywords appearing in title or
// abstract. With no keywords configured every candidate is neutral.
func (r *HeuristicRanker) scoreRelevance(keywords []string, text string) (domain.Score, int) {
	if len(keywords) == 0 {
		return domain.Score{Value: 50, Reason: "no keywords configured"}, 0
	}

	var hits []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			hits = append(hits, kw)
		}
	}
	if len(hits) == 0 {
		return domain.Score{Value: 20, Reason: "no keyword matches"}, 0
	}

	value := 100 * float64(len(hits)) / float64(len(keywords))
	if value < 40 {
		value = 40
	}
	return domain.Score{
		Value:  value,
		Reason: fmt.Sprintf("matched: %s", strings.Join(hits, ", ")),
	}, len(hits)
}

// scoreNovelty rewards fresh submissions. Each elapsed day costs fifteen
// points down to a floor.
func (r *HeuristicRanker) scoreNovelty(pubDate string) domain.Score {
	if pubDate == "" {
		return domain.Score{Value: 30, Reason: "publication date unknown"}
	}
	t, err := time.Parse("2006-01-02", pubDate)
	if err != nil {
		return domain.Score{Value: 30, Reason: "publication date unparsable"}
	}

	days := int(r.now().UTC().Sub(t).Hours() / 24)
	if days < 0 {
		days = 0
	}
	value := 100 - float64(days)*15
	if value < 10 {
		value = 10
	}
	return domain.Score{Value: value, Reason: fmt.Sprintf("%d day(s) old", days)}
}

// scoreRigor looks for evaluation vocabulary in the abstract.
func (r *HeuristicRanker) scoreRigor(abstract, text string) domain.Score {
	if strings.TrimSpace(abstract) == "" {
		return domain.Score{Value: 20, Reason: "no abstract"}
	}

	hits := 0
	for _, term := range rigorVocab {
		if strings.Contains(text, term) {
			hits++
		}
	}
	value := 40 + float64(hits)*12
	if value > 95 {
		value = 95
	}
	reason := "no evaluation vocabulary"
	if hits > 0 {
		reason = fmt.Sprintf("%d evaluation term(s)", hits)
	}
	return domain.Score{Value: value, Reason: reason}
}

// scoreImpact blends a venue base with keyword density.
func (r *HeuristicRanker) scoreImpact(venue string, keywordHits int) domain.Score {
	base := 50.0
	if strings.Contains(strings.ToLower(venue), "arxiv") {
		base = 55
	}
	bonus := float64(keywordHits) * 5
	if bonus > 20 {
		bonus = 20
	}
	return domain.Score{
		Value:  base + bonus,
		Reason: fmt.Sprintf("venue %q, %d keyword hit(s)", venue, keywordHits),
	}
}
