// Package middleware содержит HTTP middleware сервиса премиум-аккаунтов.
package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/session"
)

// SessionCookieName задаёт имя cookie с идентификатором сессии.
const SessionCookieName = "premium_session"

// SessionReader читает данные сессии по идентификатору.
type SessionReader interface {
	Read(ctx context.Context, id string) (string, error)
}

// SessionMiddleware загружает сессию запроса из хранилища и кладёт её в контекст.
type SessionMiddleware struct {
	store    SessionReader
	lifetime time.Duration
	secure   bool
	logger   *zap.Logger
}

// NewSessionMiddleware создаёт middleware сессий. Cookie живёт lifetime и при secure
// передаётся только по HTTPS.
func NewSessionMiddleware(store SessionReader, lifetime time.Duration, secure bool, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		store:    store,
		lifetime: lifetime,
		secure:   secure,
		logger:   logger,
	}
}

// Middleware восстанавливает сессию по cookie или начинает новую.
// Ошибка хранилища завершает запрос с кодом 500.
func (m *SessionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.load(r)
		if err != nil {
			m.logger.Error("load session", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		m.setCookie(w, sess.ID())

		ctx := session.NewContext(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *SessionMiddleware) load(r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return session.New(), nil
	}

	data, err := m.store.Read(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if data == "" {
		return session.New(), nil
	}

	sess, err := session.Decode(cookie.Value, data)
	if err != nil {
		m.logger.Warn("discarding unreadable session", zap.Error(err))
		return session.New(), nil
	}
	return sess, nil
}

func (m *SessionMiddleware) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(m.lifetime),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromRequest возвращает сессию, загруженную Middleware.
func SessionFromRequest(r *http.Request) (*session.Session, bool) {
	return session.FromContext(r.Context())
}
