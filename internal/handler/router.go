package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/premium-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса премиум-аккаунтов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/premium", func(r chi.Router) {
		// уведомления платёжных систем и публичная статистика не используют сессии
		r.Post("/ipn", h.PaypalIPN)
		r.Post("/gwnotify", h.GoogleWalletNotify)
		r.Get("/votes/all", h.GetAllVotes)
		r.Post("/password/reset", h.RequestPasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(h.sessionMW.Middleware)

			r.Post("/register", h.withGate(h.Register))
			r.Post("/login", h.withGate(h.Login))
			r.Post("/logout", h.withGate(h.Logout))
			r.Post("/json/auth", h.withGate(h.JSONAuth))
			r.Post("/password/reset/confirm", h.withGate(h.ResetPassword))

			r.Get("/user", h.withGate(h.GetUser))
			r.Post("/notify", h.withGate(h.SetNotify))

			r.Post("/vote", h.withGate(h.Vote))
			r.Get("/votes", h.withGate(h.GetUserVotes))

			r.Get("/payments", h.withGate(h.GetPayments))
			r.Post("/payment/card", h.withGate(h.PayByCard))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
