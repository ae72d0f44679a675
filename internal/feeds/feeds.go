// Package feeds discovers daily paper candidates and ranks them into
// deep-report and also-notable tiers. Fetching and ranking sit behind
// small interfaces so the orchestrator never touches feed wire formats.
package feeds

import (
	"context"

	"github.com/helixir/research-pipeline-service/internal/config"
	"github.com/helixir/research-pipeline-service/internal/domain"
)

// Fetcher produces candidate papers for one cycle.
type Fetcher interface {
	// Fetch returns candidates published inside the configured window,
	// newest first. An empty result is valid.
	Fetch(ctx context.Context, cfg config.FeedsConfig) ([]domain.RunCard, error)
}

// Ranker assigns score cards and splits candidates into tiers.
type Ranker interface {
	// Rank returns the deep-report tier and the also-notable tier, both
	// sorted by descending overall score. Every returned card carries a
	// populated score card.
	Rank(cfg config.FeedsConfig, candidates []domain.RunCard) (deep, notable []domain.RunCard)
}
