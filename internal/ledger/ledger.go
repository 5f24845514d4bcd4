// Package ledger переводит зачисленные средства в голоса и ограничивает их расходование.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

// FundsWriter атомарно увеличивает баланс пользователя.
// Реализуется репозиторием и его транзакцией.
type FundsWriter interface {
	CreditUser(ctx context.Context, userID int64, funds decimal.Decimal, votes int64) error
}

// Store описывает хранилище, используемое реестром голосов.
type Store interface {
	FundsWriter
	SpendVotes(ctx context.Context, userID, issueID, count int64) error
	GetUserVotes(ctx context.Context, userID int64) ([]model.Vote, error)
	GetAllVotes(ctx context.Context, limit int) ([]model.IssueVotes, error)
}

// Cache хранит суммы голосов по всем задачам.
type Cache interface {
	GetAllVotes(ctx context.Context) ([]model.IssueVotes, bool, error)
	SetAllVotes(ctx context.Context, votes []model.IssueVotes) error
	Invalidate(ctx context.Context) error
}

// Ledger ведёт реестр голосов пользователей.
type Ledger struct {
	store    Store
	voteCost decimal.Decimal
	cache    Cache
	logger   *zap.Logger

	// generation растёт при каждой инвалидации кеша сумм
	generation atomic.Uint64
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithCache включает кеширование сумм голосов.
func WithCache(c Cache) Option {
	return func(l *Ledger) { l.cache = c }
}

// WithLogger задаёт логгер для ошибок кеша.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New создаёт реестр с ценой голоса voteCost.
func New(store Store, voteCost decimal.Decimal, opts ...Option) (*Ledger, error) {
	if !voteCost.IsPositive() {
		return nil, fmt.Errorf("vote cost must be positive, got %s", voteCost)
	}

	l := &Ledger{
		store:    store,
		voteCost: voteCost,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// VoteCost возвращает цену одного голоса.
func (l *Ledger) VoteCost() decimal.Decimal {
	return l.voteCost
}

// VotesForFunds возвращает число голосов, покупаемых на funds, с округлением вниз.
func (l *Ledger) VotesForFunds(funds decimal.Decimal) int64 {
	if !funds.IsPositive() {
		return 0
	}
	return funds.Div(l.voteCost).Floor().IntPart()
}

// AssignVotesFromFunds зачисляет funds пользователю userID и начисляет купленные голоса.
// Возвращает число начисленных голосов.
func (l *Ledger) AssignVotesFromFunds(ctx context.Context, userID int64, funds decimal.Decimal) (int64, error) {
	return l.CreditWithin(ctx, l.store, userID, funds)
}

// CreditWithin выполняет зачисление через w, например внутри транзакции,
// в которой сохраняется запись журнала платежа.
func (l *Ledger) CreditWithin(ctx context.Context, w FundsWriter, userID int64, funds decimal.Decimal) (int64, error) {
	if !funds.IsPositive() {
		return 0, model.NewValidationError("amount", "credited amount must be positive")
	}

	votes := l.VotesForFunds(funds)
	if err := w.CreditUser(ctx, userID, funds, votes); err != nil {
		return 0, err
	}
	return votes, nil
}

// Vote отдаёт за задачу issueID не более requested голосов пользователя.
// Запрос больше баланса ограничивается балансом; при нулевом балансе возвращается
// model.ErrNoFreeVotes. Баланс user уменьшается сразу, чтобы следующий вызов
// в рамках того же запроса видел остаток без повторного чтения из БД.
func (l *Ledger) Vote(ctx context.Context, user *model.User, issueID, requested int64) (int64, error) {
	if requested <= 0 {
		return 0, nil
	}

	count := min(requested, user.VotesFree)
	if count <= 0 {
		return 0, model.ErrNoFreeVotes
	}

	if err := l.store.SpendVotes(ctx, user.ID, issueID, count); err != nil {
		if errors.Is(err, model.ErrVoteRace) {
			return 0, err
		}
		return 0, fmt.Errorf("spend votes: %w", err)
	}

	user.VotesFree -= count
	l.invalidate(ctx)

	return count, nil
}

// GetUserVotes возвращает голоса пользователя по убыванию количества.
func (l *Ledger) GetUserVotes(ctx context.Context, userID int64) ([]model.Vote, error) {
	return l.store.GetUserVotes(ctx, userID)
}

// GetAllVotes возвращает суммы голосов по задачам по убыванию.
// При limit > 0 возвращается не более limit строк.
func (l *Ledger) GetAllVotes(ctx context.Context, limit int) ([]model.IssueVotes, error) {
	if l.cache == nil {
		return l.store.GetAllVotes(ctx, limit)
	}

	votes, ok, err := l.cache.GetAllVotes(ctx)
	if err != nil {
		l.logger.Warn("votes cache read failed", zap.Error(err))
	}
	if !ok || err != nil {
		gen := l.generation.Load()
		votes, err = l.store.GetAllVotes(ctx, 0)
		if err != nil {
			return nil, err
		}
		if err := l.cache.SetAllVotes(ctx, votes); err != nil {
			l.logger.Warn("votes cache write failed", zap.Error(err))
		}
		// голос, отданный во время чтения, делает записанные суммы устаревшими
		if l.generation.Load() != gen {
			l.invalidate(ctx)
		}
	}

	if limit > 0 && len(votes) > limit {
		votes = votes[:limit]
	}
	return votes, nil
}

func (l *Ledger) invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	l.generation.Add(1)
	if err := l.cache.Invalidate(ctx); err != nil {
		l.logger.Warn("votes cache invalidation failed", zap.Error(err))
	}
}
