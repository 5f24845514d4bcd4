// Package gateway предоставляет HTTP-клиенты платёжных систем.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/premium-ledger/internal/config"
	"github.com/mmeshcher/premium-ledger/internal/model"
)

const (
	nvpVersion     = "56.0"
	notifyValidate = "cmd=_notify-validate"
	maxResponse    = 1 << 20
)

// ErrNotConfigured возвращается клиентом без адреса или учётных данных.
var ErrNotConfigured = errors.New("gateway not configured")

// DirectPayment содержит реквизиты списания с карты.
type DirectPayment struct {
	Amount    decimal.Decimal
	Currency  string
	CardType  string
	Number    string
	ExpMonth  int
	ExpYear   int
	CVV2      string
	FirstName string
	LastName  string
	IPAddress string
}

// PaypalClient обращается к PayPal: списание с карты через NVP API и проверка IPN.
type PaypalClient struct {
	cfg        config.PaypalConfig
	httpClient *http.Client
}

// NewPaypalClient создаёт клиент PayPal; каждый запрос ограничен timeout.
func NewPaypalClient(cfg config.PaypalConfig, timeout time.Duration) *PaypalClient {
	return &PaypalClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Charge выполняет DoDirectPayment и возвращает разобранный ответ шлюза.
// Отказ шлюза не является ошибкой: он возвращается в CardResult с Ack != Success.
func (c *PaypalClient) Charge(ctx context.Context, p DirectPayment) (*model.CardResult, []byte, error) {
	if c == nil || c.cfg.NVPEndpoint == "" || c.cfg.User == "" {
		return nil, nil, ErrNotConfigured
	}

	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}

	form := url.Values{}
	form.Set("METHOD", "DoDirectPayment")
	form.Set("VERSION", nvpVersion)
	form.Set("USER", c.cfg.User)
	form.Set("PWD", c.cfg.Password)
	form.Set("SIGNATURE", c.cfg.Signature)
	form.Set("PAYMENTACTION", "Sale")
	form.Set("IPADDRESS", p.IPAddress)
	form.Set("AMT", p.Amount.StringFixed(2))
	form.Set("CURRENCYCODE", currency)
	form.Set("CREDITCARDTYPE", p.CardType)
	form.Set("ACCT", p.Number)
	form.Set("EXPDATE", fmt.Sprintf("%02d%04d", p.ExpMonth, p.ExpYear))
	form.Set("CVV2", p.CVV2)
	form.Set("FIRSTNAME", p.FirstName)
	form.Set("LASTNAME", p.LastName)

	body, err := c.post(ctx, c.cfg.NVPEndpoint, "application/x-www-form-urlencoded", form.Encode())
	if err != nil {
		return nil, nil, err
	}

	fields, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, body, fmt.Errorf("parse nvp response: %w", err)
	}

	res, err := ParseCardResult(fields)
	if err != nil {
		return nil, body, err
	}
	return res, body, nil
}

// ParseCardResult разбирает ответ NVP. Ответ без ACK, а для успешного списания
// без AMT или TRANSACTIONID, считается ошибкой.
func ParseCardResult(fields url.Values) (*model.CardResult, error) {
	flat := make(map[string]string, len(fields))
	for k := range fields {
		flat[k] = fields.Get(k)
	}

	res := &model.CardResult{
		Ack:           flat["ACK"],
		TransactionID: flat["TRANSACTIONID"],
		Message:       flat["L_LONGMESSAGE0"],
		Fields:        flat,
	}
	if res.Ack == "" {
		return nil, errors.New("nvp response has no ACK")
	}

	if !res.Success() {
		if res.Message == "" {
			res.Message = flat["L_SHORTMESSAGE0"]
		}
		return res, nil
	}

	if res.TransactionID == "" {
		return nil, errors.New("nvp response has no TRANSACTIONID")
	}
	amount, err := decimal.NewFromString(flat["AMT"])
	if err != nil {
		return nil, fmt.Errorf("nvp response AMT %q: %w", flat["AMT"], err)
	}
	res.Amount = amount

	return res, nil
}

// VerifyIPN отправляет уведомление обратно в PayPal с командой проверки и возвращает ответ
// ("VERIFIED" или "INVALID"). rawBody передаётся без изменений, порядок полей сохраняется.
func (c *PaypalClient) VerifyIPN(ctx context.Context, rawBody string) (string, error) {
	if c == nil || c.cfg.IPNEndpoint == "" {
		return "", ErrNotConfigured
	}

	payload := notifyValidate
	if rawBody != "" {
		payload += "&" + rawBody
	}

	body, err := c.post(ctx, c.cfg.IPNEndpoint, "application/x-www-form-urlencoded", payload)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *PaypalClient) post(ctx context.Context, endpoint, contentType, payload string) ([]byte, error) {
	return do(ctx, c.httpClient, endpoint, contentType, payload, nil)
}

func do(ctx context.Context, client *http.Client, endpoint, contentType, payload string, prepare func(*http.Request)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if prepare != nil {
		prepare(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
