// Package payment приводит платежи из разных каналов к единому зачислению средств.
// Каждая попытка платежа сохраняется в журнале независимо от результата.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/gateway"
	"github.com/mmeshcher/premium-ledger/internal/ledger"
	"github.com/mmeshcher/premium-ledger/internal/model"
)

// FundingTx описывает операции, выполняемые в одной транзакции с зачислением.
type FundingTx interface {
	ledger.FundsWriter
	UpdateCardCharge(ctx context.Context, c *model.CardCharge) error
	InsertPaypalIPN(ctx context.Context, p *model.PaypalIPN) error
	InsertGoogleWalletNotify(ctx context.Context, g *model.GoogleWalletNotify) error
	ClaimFunding(ctx context.Context, method model.PaymentMethod, externalID string, userID int64, amount decimal.Decimal) (bool, error)
}

// Store описывает журнал платежей.
type Store interface {
	InsertCardCharge(ctx context.Context, c *model.CardCharge) (int64, error)
	InFundingTx(ctx context.Context, fn func(ctx context.Context, tx FundingTx) error) error
}

// Crediter зачисляет средства внутри переданной транзакции.
type Crediter interface {
	CreditWithin(ctx context.Context, w ledger.FundsWriter, userID int64, funds decimal.Decimal) (int64, error)
}

// CardGateway списывает средства с карты.
type CardGateway interface {
	Charge(ctx context.Context, p gateway.DirectPayment) (*model.CardResult, []byte, error)
}

// IPNVerifier проверяет уведомление PayPal.
type IPNVerifier interface {
	VerifyIPN(ctx context.Context, rawBody string) (string, error)
}

// NotificationFetcher получает документ уведомления Google Wallet.
type NotificationFetcher interface {
	FetchNotification(ctx context.Context, serial string) (string, error)
}

// Gateways объединяет клиенты платёжных систем.
type Gateways struct {
	Card   CardGateway
	IPN    IPNVerifier
	Wallet NotificationFetcher
}

// Processor обрабатывает платежи по карте, уведомления PayPal и Google Wallet.
type Processor struct {
	store    Store
	crediter Crediter
	gw       Gateways
	timeout  time.Duration
	logger   *zap.Logger
}

// NewProcessor создаёт обработчик платежей. Каждое обращение к платёжной системе
// ограничено timeout; истечение считается отказом шлюза.
func NewProcessor(store Store, crediter Crediter, gw Gateways, timeout time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:    store,
		crediter: crediter,
		gw:       gw,
		timeout:  timeout,
		logger:   logger,
	}
}

type claim struct {
	method     model.PaymentMethod
	externalID string
	userID     int64
	amount     decimal.Decimal
	// unmatched помечает запись журнала как незачисленную перед повторным сохранением
	// без зачисления, когда пользователь не найден.
	unmatched func()
}

// persist сохраняет запись журнала и, если передан c, зачисляет средства в той же транзакции.
// Повторное уведомление о той же внешней транзакции записывается в журнал, но не зачисляется.
func (p *Processor) persist(ctx context.Context, record func(ctx context.Context, tx FundingTx) error, c *claim) (bool, error) {
	credited := false
	err := p.store.InFundingTx(ctx, func(ctx context.Context, tx FundingTx) error {
		credited = false

		if err := record(ctx, tx); err != nil {
			return err
		}
		if c == nil {
			return nil
		}

		ok, err := tx.ClaimFunding(ctx, c.method, c.externalID, c.userID, c.amount)
		if err != nil {
			return err
		}
		if !ok {
			p.logger.Info("funding already credited",
				zap.String("method", string(c.method)),
				zap.String("external_id", c.externalID))
			return nil
		}

		if _, err := p.crediter.CreditWithin(ctx, tx, c.userID, c.amount); err != nil {
			return err
		}
		credited = true
		return nil
	})

	if c != nil && errors.Is(err, model.ErrUserNotFound) {
		p.logger.Warn("funding for unknown user recorded without credit",
			zap.String("method", string(c.method)),
			zap.String("external_id", c.externalID),
			zap.Int64("user_id", c.userID))
		if c.unmatched != nil {
			c.unmatched()
		}
		_, err = p.persist(ctx, record, nil)
		return false, err
	}
	if err != nil {
		return false, err
	}
	return credited, nil
}

func (p *Processor) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
