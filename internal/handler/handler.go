// Package handler содержит HTTP-обработчики API премиум-аккаунтов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/identity"
	"github.com/mmeshcher/premium-ledger/internal/middleware"
	"github.com/mmeshcher/premium-ledger/internal/model"
	"github.com/mmeshcher/premium-ledger/internal/payment"
	"github.com/mmeshcher/premium-ledger/internal/session"
)

// Users определяет доступ к пользователям и их платежам.
type Users interface {
	identity.UserStore
	GetUserPayments(ctx context.Context, userID int64) ([]model.PaymentInfo, error)
}

// Ledger определяет операции с голосами.
type Ledger interface {
	VoteCost() decimal.Decimal
	Vote(ctx context.Context, user *model.User, issueID, requested int64) (int64, error)
	GetUserVotes(ctx context.Context, userID int64) ([]model.Vote, error)
	GetAllVotes(ctx context.Context, limit int) ([]model.IssueVotes, error)
}

// Payments определяет обработку платежей.
type Payments interface {
	ProcessCardPayment(ctx context.Context, user *model.User, req payment.CardRequest) (*payment.CardPayment, error)
	ProcessPaypalIPN(ctx context.Context, rawBody string) (*model.PaypalResult, error)
	ProcessGoogleWalletNotify(ctx context.Context, serial string) (*model.GoogleWalletResult, error)
}

// PasswordResets определяет сброс забытого пароля.
type PasswordResets interface {
	Request(ctx context.Context, email string) error
	Redeem(ctx context.Context, g *identity.Gate, form identity.ResetForm) (*model.User, error)
}

// Deps содержит зависимости обработчика.
type Deps struct {
	Users             Users
	Ledger            Ledger
	Payments          Payments
	Resets            PasswordResets
	Sessions          *session.Store
	SessionMiddleware *middleware.SessionMiddleware
	// AdminEmail может просматривать чужие аккаунты через параметр ?as=.
	AdminEmail string
	Logger     *zap.Logger
}

// Handler реализует HTTP-обработчики API премиум-аккаунтов.
type Handler struct {
	users      Users
	ledger     Ledger
	payments   Payments
	resets     PasswordResets
	sessions   *session.Store
	sessionMW  *middleware.SessionMiddleware
	adminEmail string
	logger     *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		users:      d.Users,
		ledger:     d.Ledger,
		payments:   d.Payments,
		resets:     d.Resets,
		sessions:   d.Sessions,
		sessionMW:  d.SessionMiddleware,
		adminEmail: d.AdminEmail,
		logger:     logger,
	}
}

// gateHandler обрабатывает запрос в контексте аутентификации его сессии.
type gateHandler func(w http.ResponseWriter, r *http.Request, g *identity.Gate)

// withGate создаёт Gate для сессии запроса и сохраняет сессию перед отправкой заголовков ответа.
func (h *Handler) withGate(next gateHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := middleware.SessionFromRequest(r)
		if !ok {
			sess = session.New()
		}

		var opts []identity.GateOption
		if as := r.URL.Query().Get("as"); as != "" && h.adminEmail != "" {
			opts = append(opts, identity.WithImpersonation(h.adminEmail, as))
		}
		g := identity.NewGate(h.users, sess, opts...)

		sw := &sessionWriter{
			ResponseWriter: w,
			save:           func() error { return sess.Save(r.Context(), h.sessions) },
			logger:         h.logger,
		}
		next(sw, r, g)
		if !sw.wroteHeader {
			sw.WriteHeader(http.StatusOK)
		}
	}
}

// sessionWriter сохраняет сессию непосредственно перед записью заголовков.
// Если сохранить не удалось, клиент получает 500, а тело ответа отбрасывается.
type sessionWriter struct {
	http.ResponseWriter
	save        func() error
	logger      *zap.Logger
	wroteHeader bool
	failed      bool
}

func (w *sessionWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	if err := w.save(); err != nil {
		w.logger.Error("save session", zap.Error(err))
		w.failed = true
		w.Header().Del("Content-Type")
		w.ResponseWriter.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку в HTTP-ответ. Неизвестные ошибки считаются ошибками хранилища.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var (
		verr *model.ValidationError
		gerr *model.GatewayError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.As(err, &gerr):
		h.logger.Warn(op, zap.Error(err))
		msg := gerr.Err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "payment gateway did not respond in time"
		}
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: msg})
	case errors.Is(err, model.ErrNotLoggedIn):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, model.ErrNoFreeVotes), errors.Is(err, model.ErrVoteRace):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: "you have no free votes left"})
	default:
		h.logger.Error(op, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
