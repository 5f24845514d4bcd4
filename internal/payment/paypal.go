package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

const (
	ipnVerified        = "VERIFIED"
	ipnStatusCompleted = "Completed"
)

// ProcessPaypalIPN обрабатывает уведомление PayPal в исходном виде (application/x-www-form-urlencoded).
// Уведомление пересылается в PayPal для проверки; средства зачисляются только если PayPal
// ответил VERIFIED и payment_status равен Completed. Уведомление сохраняется в журнале в любом случае.
func (p *Processor) ProcessPaypalIPN(ctx context.Context, rawBody string) (*model.PaypalResult, error) {
	fields, err := url.ParseQuery(rawBody)
	if err != nil {
		p.logger.Warn("malformed paypal ipn", zap.Error(err))
	}

	flat := make(map[string]string, len(fields))
	for k := range fields {
		flat[k] = fields.Get(k)
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("marshal ipn: %w", err)
	}

	res := &model.PaypalResult{
		PaymentStatus: flat["payment_status"],
		TxnID:         strings.TrimSpace(flat["txn_id"]),
		UserID:        parseUserID(flat["custom"]),
		Email:         flat["payer_email"],
		Amount:        parseAmount(flat["mc_gross"]),
	}

	ipn := &model.PaypalIPN{
		UserID: res.UserID,
		Email:  res.Email,
		Data:   data,
		Amount: res.Amount,
		TxnID:  res.TxnID,
		Result: model.ResultUnverified,
	}
	record := func(ctx context.Context, tx FundingTx) error {
		return tx.InsertPaypalIPN(ctx, ipn)
	}

	gwCtx, cancel := p.gatewayContext(ctx)
	check, err := p.gw.IPN.VerifyIPN(gwCtx, rawBody)
	cancel()
	if err != nil {
		p.logger.Warn("paypal ipn verification failed", zap.String("txn_id", res.TxnID), zap.Error(err))
		if _, perr := p.persist(ctx, record, nil); perr != nil {
			return nil, perr
		}
		return nil, &model.GatewayError{Method: model.PaymentMethodPaypal, Err: err}
	}

	res.Verification = check
	ipn.Check = check
	if check == ipnVerified {
		ipn.Result = model.ResultVerified
	}

	var c *claim
	switch {
	case check != ipnVerified:
		p.logger.Warn("paypal ipn not verified", zap.String("txn_id", res.TxnID), zap.String("check", check))
	case res.PaymentStatus != ipnStatusCompleted:
		p.logger.Info("paypal ipn payment not completed",
			zap.String("txn_id", res.TxnID),
			zap.String("payment_status", res.PaymentStatus))
	case res.TxnID == "" || res.UserID == nil || !res.Amount.IsPositive():
		p.logger.Warn("verified paypal ipn is missing txn_id, custom or mc_gross", zap.String("txn_id", res.TxnID))
	default:
		c = &claim{
			method:     model.PaymentMethodPaypal,
			externalID: res.TxnID,
			userID:     *res.UserID,
			amount:     res.Amount,
		}
	}

	res.Credited, err = p.persist(ctx, record, c)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func parseUserID(raw string) *int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func parseAmount(raw string) decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return amount
}
