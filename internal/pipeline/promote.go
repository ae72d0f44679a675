package pipeline

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-pipeline-service/internal/archive"
	"github.com/helixir/research-pipeline-service/internal/database"
	"github.com/helixir/research-pipeline-service/internal/domain"
)

// TxPromoter performs the promotion read-modify-write inside one database
// transaction. The row lock taken by the archive holds for the duration,
// so concurrent promotions for the same date serialize instead of losing
// updates.
type TxPromoter struct {
	db *database.DB
}

var _ Promoter = (*TxPromoter)(nil)

// NewTxPromoter creates a transactional promoter.
func NewTxPromoter(db *database.DB) *TxPromoter {
	return &TxPromoter{db: db}
}

// PromotePaper implements Promoter.
func (p *TxPromoter) PromotePaper(ctx context.Context, date string, card domain.RunCard) error {
	return p.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return archive.NewPgArchive(tx).PromotePaper(ctx, date, card)
	})
}
