package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/identity"
	"github.com/mmeshcher/premium-ledger/internal/model"
)

type userResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Premium       bool            `json:"premium"`
	VotesFree     int64           `json:"votesFree"`
	FundsTotal    decimal.Decimal `json:"fundsTotal"`
	FundsCount    int64           `json:"fundsCount"`
	FundsSignup   decimal.Decimal `json:"fundsSignup"`
	NotifyByEmail bool            `json:"notifyByEmail"`
	VoteCost      decimal.Decimal `json:"voteCost"`
}

func (h *Handler) newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Premium:       u.IsPremium(),
		VotesFree:     u.VotesFree,
		FundsTotal:    u.FundsTotal,
		FundsCount:    u.FundsCount,
		FundsSignup:   u.FundsSignup,
		NotifyByEmail: u.NotifyByEmail,
		VoteCost:      h.ledger.VoteCost(),
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register создаёт аккаунт и выполняет вход.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	var form identity.RegistrationForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := g.Register(r.Context(), form)
	if err != nil {
		h.writeError(w, "register user", err)
		return
	}

	writeJSON(w, http.StatusOK, h.newUserResponse(u))
}

// Login проверяет учётные данные и делает пользователя текущим в сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ok, err := g.Auth(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, "login user", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "The email address or password is incorrect."})
		return
	}

	u, err := g.LoadUser(r.Context(), "", false)
	if err != nil {
		h.writeError(w, "load user", err)
		return
	}
	writeJSON(w, http.StatusOK, h.newUserResponse(u))
}

// Logout завершает сессию пользователя.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	g.Logout()
	w.WriteHeader(http.StatusOK)
}

type jsonAuthResponse struct {
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`
}

// JSONAuth проверяет учётные данные настольного приложения, не меняя сессию,
// и запоминает версию приложения из User-Agent.
func (h *Handler) JSONAuth(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var resp jsonAuthResponse
	ok, err := g.Verify(r.Context(), req.Email, req.Password)
	if err == nil && ok {
		err = g.RecordGuiLogin(r.Context(), req.Email, r.UserAgent(), time.Now())
	}
	if err != nil {
		h.logger.Error("json auth", zap.Error(err))
		resp.Error = "authentication is temporarily unavailable"
	}
	resp.Result = ok && err == nil

	writeJSON(w, http.StatusOK, resp)
}

// GetUser возвращает текущего пользователя.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	u, err := g.LoadUser(r.Context(), "", false)
	if err != nil {
		h.writeError(w, "load user", err)
		return
	}
	writeJSON(w, http.StatusOK, h.newUserResponse(u))
}

type notifyRequest struct {
	Notify bool `json:"notify"`
}

// SetNotify сохраняет согласие пользователя на рассылку.
func (h *Handler) SetNotify(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := g.SetNotifyByEmail(r.Context(), req.Notify); err != nil {
		h.writeError(w, "set notify by email", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type resetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset отправляет ссылку для сброса пароля на email пользователя.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.resets.Request(r.Context(), req.Email); err != nil {
		h.writeError(w, "request password reset", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ResetPassword задаёт новый пароль по токену из письма и выполняет вход.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	var form identity.ResetForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.resets.Redeem(r.Context(), g, form)
	if err != nil {
		h.writeError(w, "reset password", err)
		return
	}
	writeJSON(w, http.StatusOK, h.newUserResponse(u))
}
