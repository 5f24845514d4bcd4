package gateway

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/premium-ledger/internal/config"
)

const checkoutNamespace = "http://checkout.google.com/schema/2"

// GoogleWalletClient запрашивает историю уведомлений Google Wallet.
type GoogleWalletClient struct {
	cfg        config.GoogleWalletConfig
	httpClient *http.Client
}

// NewGoogleWalletClient создаёт клиент Google Wallet; каждый запрос ограничен timeout.
func NewGoogleWalletClient(cfg config.GoogleWalletConfig, timeout time.Duration) *GoogleWalletClient {
	return &GoogleWalletClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchNotification возвращает XML документа истории уведомлений по serial-number.
func (c *GoogleWalletClient) FetchNotification(ctx context.Context, serial string) (string, error) {
	if c == nil || c.cfg.Endpoint == "" || c.cfg.MerchantID == "" {
		return "", ErrNotConfigured
	}

	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(serial)); err != nil {
		return "", err
	}
	payload := `<notification-history-request xmlns="` + checkoutNamespace + `">` +
		`<serial-number>` + escaped.String() + `</serial-number>` +
		`</notification-history-request>`

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + "/" + c.cfg.MerchantID + "/"

	body, err := do(ctx, c.httpClient, endpoint, "application/xml; charset=UTF-8", payload, func(req *http.Request) {
		req.SetBasicAuth(c.cfg.MerchantID, c.cfg.MerchantKey)
		req.Header.Set("Accept", "application/xml; charset=UTF-8")
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}
