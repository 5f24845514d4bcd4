package handler

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/identity"
	"github.com/mmeshcher/premium-ledger/internal/model"
	"github.com/mmeshcher/premium-ledger/internal/payment"
)

const maxNotificationSize = 1 << 20

type paymentResponse struct {
	Method  model.PaymentMethod `json:"method"`
	Amount  decimal.Decimal     `json:"amount"`
	Result  string              `json:"result"`
	Created time.Time           `json:"created"`
}

// GetPayments возвращает историю платежей текущего пользователя.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	user, err := g.LoadUser(r.Context(), "", false)
	if err != nil {
		h.writeError(w, "load user", err)
		return
	}

	payments, err := h.users.GetUserPayments(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, "get payments", err)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, paymentResponse{
			Method:  p.Method,
			Amount:  p.Amount,
			Result:  p.Result,
			Created: p.Created,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type cardPaymentResponse struct {
	Credited      bool            `json:"credited"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	VotesFree     int64           `json:"votesFree"`
}

// PayByCard списывает средства с карты текущего пользователя.
func (h *Handler) PayByCard(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	var req payment.CardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		req.IPAddress = host
	} else {
		req.IPAddress = r.RemoteAddr
	}

	user, err := g.LoadUser(r.Context(), "", false)
	if err != nil {
		h.writeError(w, "load user", err)
		return
	}

	res, err := h.payments.ProcessCardPayment(r.Context(), user, req)
	if err != nil {
		h.writeError(w, "card payment", err)
		return
	}

	// баланс изменился внутри транзакции зачисления
	user, err = g.LoadUser(r.Context(), "", true)
	if err != nil {
		h.writeError(w, "reload user", err)
		return
	}

	writeJSON(w, http.StatusOK, cardPaymentResponse{
		Credited:      res.Credited,
		TransactionID: res.Result.TransactionID,
		Amount:        res.Result.Amount,
		VotesFree:     user.VotesFree,
	})
}

// PaypalIPN принимает уведомление PayPal. Тело передаётся на проверку без изменений,
// поэтому форма не разбирается до обработки.
func (h *Handler) PaypalIPN(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationSize))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.payments.ProcessPaypalIPN(r.Context(), string(body))
	if err != nil {
		h.writeError(w, "paypal ipn", err)
		return
	}

	h.logger.Info("paypal ipn processed",
		zap.String("txn_id", res.TxnID),
		zap.String("verification", res.Verification),
		zap.String("payment_status", res.PaymentStatus),
		zap.Bool("credited", res.Credited),
	)
	w.WriteHeader(http.StatusOK)
}

type notificationAcknowledgment struct {
	XMLName      xml.Name `xml:"http://checkout.google.com/schema/2 notification-acknowledgment"`
	SerialNumber string   `xml:"serial-number,attr"`
}

// GoogleWalletNotify принимает серийный номер уведомления Google Wallet и подтверждает его получение.
func (h *Handler) GoogleWalletNotify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationSize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	serial := r.PostForm.Get("serial-number")

	res, err := h.payments.ProcessGoogleWalletNotify(r.Context(), serial)
	if err != nil {
		h.writeError(w, "google wallet notify", err)
		return
	}

	h.logger.Info("google wallet notification processed",
		zap.String("serial", serial),
		zap.Bool("ignored", res.Ignored),
		zap.String("order", res.OrderNumber),
		zap.Bool("credited", res.Credited),
	)

	out, err := xml.Marshal(notificationAcknowledgment{SerialNumber: serial})
	if err != nil {
		h.writeError(w, "marshal acknowledgment", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append([]byte(xml.Header), out...))
}
