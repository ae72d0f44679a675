package feeds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-pipeline-service/internal/config"
	"github.com/helixir/research-pipeline-service/internal/domain"
)

func newTestRanker() *HeuristicRanker {
	r := NewHeuristicRanker()
	r.now = fixedNow
	return r
}

func candidate(id, title, abstract, date string) domain.RunCard {
	return domain.RunCard{
		Paper: domain.Paper{
			PaperID:         id,
			Title:           title,
			Abstract:        abstract,
			Venue:           "arXiv (cs.LG)",
			PublicationDate: date,
		},
	}
}

func TestRank(t *testing.T) {
	cfg := config.FeedsConfig{Keywords: []string{"attention", "long context"}}

	t.Run("keyword matches outrank misses", func(t *testing.T) {
		ranker := newTestRanker()
		deep, notable := ranker.Rank(cfg, []domain.RunCard{
			candidate("arxiv:1", "Crystal Growth Rates", "We measure crystal growth in experiment.", "2026-08-28"),
			candidate("arxiv:2", "Sparse Attention for Long Context", "Benchmark and ablation on attention over a long context dataset.", "2026-08-28"),
		})

		require.NotEmpty(t, deep)
		assert.Equal(t, "arxiv:2", deep[0].PaperID)
		for _, card := range append(deep, notable...) {
			require.NotNil(t, card.Report.Scores)
			assert.Greater(t, card.Report.Scores.Overall, 0.0)
		}
	})

	t.Run("fresher paper scores higher novelty", func(t *testing.T) {
		ranker := newTestRanker()
		fresh := ranker.score(cfg, &domain.RunCard{Paper: domain.Paper{PublicationDate: "2026-08-29"}})
		stale := ranker.score(cfg, &domain.RunCard{Paper: domain.Paper{PublicationDate: "2026-08-24"}})
		assert.Greater(t, fresh.Novelty.Value, stale.Novelty.Value)
	})

	t.Run("always promotes at least one candidate", func(t *testing.T) {
		ranker := newTestRanker()
		deep, notable := ranker.Rank(cfg, []domain.RunCard{
			candidate("arxiv:1", "Unrelated Topic", "", "2020-01-01"),
			candidate("arxiv:2", "Another Unrelated Topic", "", "2020-01-01"),
		})
		assert.Len(t, deep, 1)
		assert.Len(t, notable, 1)
	})

	t.Run("empty input yields empty tiers", func(t *testing.T) {
		ranker := newTestRanker()
		deep, notable := ranker.Rank(cfg, nil)
		assert.Empty(t, deep)
		assert.Empty(t, notable)
	})

	t.Run("does not mutate input slice", func(t *testing.T) {
		ranker := newTestRanker()
		input := []domain.RunCard{
			candidate("arxiv:1", "Sparse Attention", "attention study", "2026-08-28"),
		}
		ranker.Rank(cfg, input)
		assert.Nil(t, input[0].Report.Scores)
	})
}

func TestScoreDimensions(t *testing.T) {
	ranker := newTestRanker()

	t.Run("no keywords configured is neutral", func(t *testing.T) {
		score, hits := ranker.scoreRelevance(nil, "anything at all")
		assert.Equal(t, 50.0, score.Value)
		assert.Zero(t, hits)
	})

	t.Run("full keyword coverage scores 100", func(t *testing.T) {
		score, hits := ranker.scoreRelevance([]string{"attention"}, "sparse attention at scale")
		assert.Equal(t, 100.0, score.Value)
		assert.Equal(t, 1, hits)
		assert.Contains(t, score.Reason, "attention")
	})

	t.Run("novelty floors for old papers", func(t *testing.T) {
		score := ranker.scoreNovelty("2023-01-01")
		assert.Equal(t, 10.0, score.Value)
	})

	t.Run("rigor rewards evaluation vocabulary", func(t *testing.T) {
		with := ranker.scoreRigor("has text", "we run a benchmark with ablation on a dataset")
		without := ranker.scoreRigor("has text", "purely speculative essay")
		assert.Greater(t, with.Value, without.Value)
	})

	t.Run("rigor penalizes missing abstract", func(t *testing.T) {
		score := ranker.scoreRigor("  ", "title only")
		assert.Equal(t, 20.0, score.Value)
	})

	t.Run("impact caps keyword bonus", func(t *testing.T) {
		score := ranker.scoreImpact("arXiv (cs.LG)", 10)
		assert.Equal(t, 75.0, score.Value)
	})
}
