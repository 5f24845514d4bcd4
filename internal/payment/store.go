package payment

import (
	"context"

	"github.com/mmeshcher/premium-ledger/internal/model"
	"github.com/mmeshcher/premium-ledger/internal/repository"
)

// PostgresStore хранит журнал платежей в PostgreSQL.
type PostgresStore struct {
	repo *repository.PostgresRepository
}

// NewPostgresStore использует repo как журнал платежей.
func NewPostgresStore(repo *repository.PostgresRepository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

func (s *PostgresStore) InsertCardCharge(ctx context.Context, c *model.CardCharge) (int64, error) {
	return s.repo.InsertCardCharge(ctx, c)
}

func (s *PostgresStore) InFundingTx(ctx context.Context, fn func(ctx context.Context, tx FundingTx) error) error {
	return s.repo.WithTx(ctx, func(tx *repository.Tx) error {
		return fn(ctx, tx)
	})
}
