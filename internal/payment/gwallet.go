package payment

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

const newOrderMarker = "new-order-notification"

// walletNotification содержит поля документа истории уведомлений, нужные для зачисления.
type walletNotification struct {
	NewOrder    bool
	OrderNumber string
	PrivateData string
	Email       string
}

// ProcessGoogleWalletNotify получает документ уведомления по serial и зачисляет оплату нового заказа.
// Уведомления о других событиях игнорируются: в результате выставляется Ignored, ошибки нет.
func (p *Processor) ProcessGoogleWalletNotify(ctx context.Context, serial string) (*model.GoogleWalletResult, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, model.NewValidationError("serial-number", "serial number is required")
	}

	gwCtx, cancel := p.gatewayContext(ctx)
	data, err := p.gw.Wallet.FetchNotification(gwCtx, serial)
	cancel()
	if err != nil {
		p.logger.Warn("google wallet fetch failed", zap.String("serial", serial), zap.Error(err))
		return nil, p.walletFailure(ctx, serial, data, err)
	}

	res := &model.GoogleWalletResult{SerialNumber: serial}
	if !strings.Contains(data, newOrderMarker) {
		p.logger.Info("ignoring google wallet notification", zap.String("serial", serial))
		res.Ignored = true
		return res, nil
	}

	n, err := parseWalletNotification(data)
	if err != nil {
		p.logger.Warn("google wallet notification unreadable", zap.String("serial", serial), zap.Error(err))
		return nil, p.walletFailure(ctx, serial, data, err)
	}
	if !n.NewOrder {
		res.Ignored = true
		return res, nil
	}

	res.OrderNumber = n.OrderNumber
	if res.OrderNumber == "" {
		res.OrderNumber = serial
	}
	res.Email = n.Email

	notify := &model.GoogleWalletNotify{
		Email:       n.Email,
		Data:        data,
		OrderNumber: res.OrderNumber,
		Result:      model.ResultFailure,
	}
	record := func(ctx context.Context, tx FundingTx) error {
		return tx.InsertGoogleWalletNotify(ctx, notify)
	}

	rawUser, rawAmount, ok := cutLast(n.PrivateData, ",")
	userID, amount := parseUserID(rawUser), parseAmount(rawAmount)
	if !ok || userID == nil || !amount.IsPositive() {
		p.logger.Warn("google wallet order has malformed private data",
			zap.String("order", res.OrderNumber),
			zap.String("private_data", n.PrivateData))
		if _, err := p.persist(ctx, record, nil); err != nil {
			return nil, err
		}
		return nil, model.NewValidationError("merchant-private-data", "expected userId,amount")
	}

	res.UserID = *userID
	res.Amount = amount
	notify.UserID = userID
	notify.Amount = amount
	notify.Result = model.ResultSuccess

	res.Credited, err = p.persist(ctx, record, &claim{
		method:     model.PaymentMethodGoogleWallet,
		externalID: res.OrderNumber,
		userID:     res.UserID,
		amount:     amount,
		unmatched:  func() { notify.Result = model.ResultFailure },
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// walletFailure сохраняет неудачную попытку получить или разобрать уведомление serial
// и возвращает ошибку шлюза. Номер заказа неизвестен, поэтому в журнал пишется serial.
func (p *Processor) walletFailure(ctx context.Context, serial, data string, cause error) error {
	notify := &model.GoogleWalletNotify{
		Data:        data,
		OrderNumber: serial,
		Result:      model.ResultFailure,
	}
	if _, err := p.persist(ctx, func(ctx context.Context, tx FundingTx) error {
		return tx.InsertGoogleWalletNotify(ctx, notify)
	}, nil); err != nil {
		return err
	}
	return &model.GatewayError{Method: model.PaymentMethodGoogleWallet, Err: cause}
}

// parseWalletNotification ищет элементы по локальному имени, пространство имён не учитывается.
func parseWalletNotification(data string) (*walletNotification, error) {
	d := xml.NewDecoder(strings.NewReader(data))
	n := &walletNotification{}

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse notification: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var dst *string
		switch start.Name.Local {
		case newOrderMarker:
			n.NewOrder = true
			continue
		case "google-order-number":
			dst = &n.OrderNumber
		case "merchant-private-data":
			dst = &n.PrivateData
		case "email":
			dst = &n.Email
		default:
			continue
		}

		text, err := elementText(d)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", start.Name.Local, err)
		}
		if *dst == "" {
			*dst = text
		}
	}
}

// elementText собирает текст текущего элемента вместе с вложенными.
func elementText(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
