// Package identity аутентифицирует пользователя и загружает его данные для текущего запроса.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mmeshcher/premium-ledger/internal/model"
	"github.com/mmeshcher/premium-ledger/internal/session"
)

// PrincipalKey задаёт ключ сессии, под которым хранится email вошедшего пользователя.
const PrincipalKey = "email"

var guiUserAgent = regexp.MustCompile(`Synergy GUI ([\d.]+)`)

// UserStore описывает доступ к пользователям.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	IsEmailInUse(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
	SetNotifyByEmail(ctx context.Context, userID int64, notify bool) error
	RecordGuiLogin(ctx context.Context, email, version string, at time.Time) error
}

// Gate хранит контекст аутентификации одного запроса.
// Gate не потокобезопасен и не должен переживать запрос.
type Gate struct {
	users      UserStore
	sess       *session.Session
	adminEmail string
	viewAs     string
	user       *model.User

	// LoginInvalid выставляется после неудачной попытки входа.
	LoginInvalid bool
	// AttemptedEmail содержит email неудачной попытки входа.
	AttemptedEmail string
}

// GateOption настраивает Gate.
type GateOption func(*Gate)

// WithImpersonation позволяет администратору adminEmail просматривать аккаунт viewAs.
func WithImpersonation(adminEmail, viewAs string) GateOption {
	return func(g *Gate) {
		g.adminEmail = adminEmail
		g.viewAs = viewAs
	}
}

// NewGate создаёт контекст аутентификации для сессии sess.
func NewGate(users UserStore, sess *session.Session, opts ...GateOption) *Gate {
	g := &Gate{users: users, sess: sess}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Verify проверяет email и пароль, не меняя сессию.
// Неверные учётные данные возвращают false без ошибки.
func (g *Gate) Verify(ctx context.Context, email, password string) (bool, error) {
	u, err := g.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}

	ok, upgrade, err := CheckPassword(u.PasswordHash, password)
	if err != nil || !ok {
		return false, err
	}

	if upgrade {
		hash, err := HashPassword(password)
		if err != nil {
			return false, err
		}
		if err := g.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return false, err
		}
		u.PasswordHash = hash
	}

	g.user = u
	return true, nil
}

// Auth проверяет учётные данные и при успехе делает пользователя текущим в сессии.
// При неудаче запоминает email и выставляет LoginInvalid.
func (g *Gate) Auth(ctx context.Context, email, password string) (bool, error) {
	ok, err := g.Verify(ctx, email, password)
	if err != nil {
		return false, err
	}
	if !ok {
		g.AttemptedEmail = email
		g.LoginInvalid = true
		return false, nil
	}

	return true, g.Login(ctx, email, false)
}

// LoadUser загружает пользователя email, а при пустом email текущего пользователя сессии.
// Результат запоминается на время запроса; force заставляет перечитать его из хранилища.
// Если пользователь сессии не найден, сессия разлогинивается и возвращается model.ErrLookup.
func (g *Gate) LoadUser(ctx context.Context, email string, force bool) (*model.User, error) {
	if email == "" {
		email = g.principal()
	}
	if email == "" {
		return nil, model.ErrNotLoggedIn
	}

	if g.user != nil && g.user.Email == email && !force {
		return g.user, nil
	}

	u, err := g.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			g.Logout()
			return nil, fmt.Errorf("%w: %s: %w", model.ErrLookup, email, err)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	g.user = u
	return u, nil
}

// User возвращает загруженного пользователя или nil.
func (g *Gate) User() *model.User {
	return g.user
}

// Login делает email текущим пользователем сессии; при load пользователь перечитывается.
func (g *Gate) Login(ctx context.Context, email string, load bool) error {
	g.sess.Set(PrincipalKey, email)
	if load {
		_, err := g.LoadUser(ctx, email, true)
		return err
	}
	return nil
}

// Logout забывает пользователя запроса и сессии.
func (g *Gate) Logout() {
	g.user = nil
	g.sess.Delete(PrincipalKey)
}

// IsLoggedIn сообщает, есть ли в сессии вошедший пользователь.
func (g *Gate) IsLoggedIn() bool {
	return g.sess.Get(PrincipalKey) != ""
}

// IsUserPremium сообщает, есть ли у вошедшего пользователя успешные зачисления.
func (g *Gate) IsUserPremium(ctx context.Context) (bool, error) {
	if !g.IsLoggedIn() {
		return false, nil
	}
	u, err := g.LoadUser(ctx, "", false)
	if err != nil {
		return false, err
	}
	return u.IsPremium(), nil
}

// SetNotifyByEmail сохраняет согласие вошедшего пользователя на рассылку.
func (g *Gate) SetNotifyByEmail(ctx context.Context, notify bool) error {
	u, err := g.LoadUser(ctx, "", false)
	if err != nil {
		return err
	}
	if err := g.users.SetNotifyByEmail(ctx, u.ID, notify); err != nil {
		return err
	}
	u.NotifyByEmail = notify
	return nil
}

// RecordGuiLogin запоминает версию настольного приложения, из которого вошёл email.
// Запросы не от приложения игнорируются.
func (g *Gate) RecordGuiLogin(ctx context.Context, email, userAgent string, at time.Time) error {
	m := guiUserAgent.FindStringSubmatch(userAgent)
	if m == nil {
		return nil
	}
	return g.users.RecordGuiLogin(ctx, email, m[1], at)
}

func (g *Gate) principal() string {
	email := g.sess.Get(PrincipalKey)
	if g.adminEmail != "" && email == g.adminEmail && g.viewAs != "" {
		return g.viewAs
	}
	return email
}
