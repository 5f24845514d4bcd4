package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/gateway"
	"github.com/mmeshcher/premium-ledger/internal/model"
	"github.com/mmeshcher/premium-ledger/internal/validation"
)

// CardRequest содержит данные формы оплаты картой.
type CardRequest struct {
	Number    string          `json:"number"`
	Name      string          `json:"name"`
	ExpMonth  int             `json:"month"`
	ExpYear   int             `json:"year"`
	CVV2      string          `json:"cvv2"`
	Amount    decimal.Decimal `json:"amount"`
	IPAddress string          `json:"-"`
}

// maskedCardRequest сохраняется в журнале вместо исходного запроса.
type maskedCardRequest struct {
	Network  validation.CardNetwork `json:"network"`
	Number   string                 `json:"number"`
	Name     string                 `json:"name"`
	ExpMonth int                    `json:"month"`
	ExpYear  int                    `json:"year"`
	CVV2     string                 `json:"cvv2"`
	Amount   string                 `json:"amount"`
}

// CardPayment описывает итог списания с карты.
type CardPayment struct {
	Result   *model.CardResult
	Credited bool
}

// ProcessCardPayment списывает средства с карты пользователя и при успехе зачисляет их.
// Ошибки формы возвращаются как *model.ValidationError до обращения к шлюзу,
// отказ или недоступность шлюза как *model.GatewayError.
func (p *Processor) ProcessCardPayment(ctx context.Context, user *model.User, req CardRequest) (*CardPayment, error) {
	number, network, err := validateCard(&req)
	if err != nil {
		return nil, err
	}

	masked, err := json.Marshal(maskedCardRequest{
		Network:  network,
		Number:   validation.MaskCardNumber(number),
		Name:     req.Name,
		ExpMonth: req.ExpMonth,
		ExpYear:  req.ExpYear,
		CVV2:     validation.Redact(req.CVV2),
		Amount:   req.Amount.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal card request: %w", err)
	}

	userID := user.ID
	charge := &model.CardCharge{
		UserID:  &userID,
		Request: masked,
		Result:  model.ResultPending,
		Amount:  req.Amount,
	}
	charge.ID, err = p.store.InsertCardCharge(ctx, charge)
	if err != nil {
		return nil, err
	}

	first, last := splitName(req.Name)
	gwCtx, cancel := p.gatewayContext(ctx)
	res, _, err := p.gw.Card.Charge(gwCtx, gateway.DirectPayment{
		Amount:    req.Amount,
		CardType:  string(network),
		Number:    number,
		ExpMonth:  req.ExpMonth,
		ExpYear:   req.ExpYear,
		CVV2:      req.CVV2,
		FirstName: first,
		LastName:  last,
		IPAddress: req.IPAddress,
	})
	cancel()

	if err != nil {
		p.logger.Warn("card gateway failed", zap.Int64("charge_id", charge.ID), zap.Error(err))

		charge.Result = model.ResultFailure
		charge.Response, _ = json.Marshal(map[string]string{"error": err.Error()})
		if _, perr := p.persist(ctx, updateCardCharge(charge), nil); perr != nil {
			return nil, perr
		}
		return nil, &model.GatewayError{Method: model.PaymentMethodCard, Err: err}
	}

	charge.Response, err = json.Marshal(res.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal card response: %w", err)
	}

	if !res.Success() {
		p.logger.Warn("card payment declined",
			zap.Int64("charge_id", charge.ID),
			zap.String("ack", res.Ack),
			zap.String("message", res.Message))

		charge.Result = model.ResultFailure
		if _, err := p.persist(ctx, updateCardCharge(charge), nil); err != nil {
			return nil, err
		}

		msg := res.Message
		if msg == "" {
			msg = "payment declined"
		}
		return nil, &model.GatewayError{Method: model.PaymentMethodCard, Err: errors.New(msg)}
	}

	charge.Result = model.ResultSuccess
	charge.Amount = res.Amount
	charge.TransactionID = res.TransactionID

	var c *claim
	if res.Amount.IsPositive() {
		c = &claim{
			method:     model.PaymentMethodCard,
			externalID: res.TransactionID,
			userID:     user.ID,
			amount:     res.Amount,
			unmatched:  func() { charge.Result = model.ResultFailure },
		}
	}

	credited, err := p.persist(ctx, updateCardCharge(charge), c)
	if err != nil {
		return nil, err
	}
	return &CardPayment{Result: res, Credited: credited}, nil
}

func updateCardCharge(c *model.CardCharge) func(ctx context.Context, tx FundingTx) error {
	return func(ctx context.Context, tx FundingTx) error {
		return tx.UpdateCardCharge(ctx, c)
	}
}

func validateCard(req *CardRequest) (string, validation.CardNetwork, error) {
	number := validation.NormalizeCardNumber(req.Number)
	req.Name = strings.TrimSpace(req.Name)
	req.CVV2 = strings.TrimSpace(req.CVV2)

	switch {
	case number == "":
		return "", "", model.NewValidationError("number", "Please enter your card number.")
	case req.Name == "":
		return "", "", model.NewValidationError("name", "Please enter the name on your card.")
	case req.CVV2 == "":
		return "", "", model.NewValidationError("cvv2", "Please enter your card security code (CVV2).")
	}

	network, ok := validation.DetectCardNetwork(number)
	if !ok {
		return "", "", model.NewValidationError("number", "Card number not recognized.")
	}
	if !validation.IsValidLuhn(number) {
		return "", "", model.NewValidationError("number", "Card number is not valid.")
	}
	if req.ExpMonth < 1 || req.ExpMonth > 12 {
		return "", "", model.NewValidationError("month", "Please select the card expiry month.")
	}
	if req.ExpYear <= 0 {
		return "", "", model.NewValidationError("year", "Please select the card expiry year.")
	}
	if !req.Amount.IsPositive() {
		return "", "", model.NewValidationError("amount", "Please enter an amount greater than zero.")
	}

	return number, network, nil
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}
