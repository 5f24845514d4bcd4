package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

const (
	resetSubject     = "Password reset"
	resetBody        = "Hello,\n\nPlease click the following link to reset your password.\n\n"
	defaultResetTTL  = 24 * time.Hour
	resetTokenParam  = "token"
	invalidResetLink = "This password reset link is invalid or has expired."
)

// ResetStore хранит токены сброса пароля.
type ResetStore interface {
	// SetResetToken возвращает model.ErrUserNotFound, если email не зарегистрирован.
	SetResetToken(ctx context.Context, email, token string, expires time.Time) error
	// RedeemResetToken возвращает model.ErrUserNotFound для неизвестного или истёкшего токена.
	RedeemResetToken(ctx context.Context, token, hash string, now time.Time) (string, error)
}

// Mailer отправляет письма пользователям.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ResetForm содержит данные формы нового пароля.
type ResetForm struct {
	Token     string `json:"token"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

// PasswordReset выдаёт и погашает одноразовые токены сброса пароля.
type PasswordReset struct {
	store    ResetStore
	mailer   Mailer
	linkBase string
	ttl      time.Duration
	now      func() time.Time
	newToken func() string
}

// ResetOption настраивает PasswordReset.
type ResetOption func(*PasswordReset)

// WithResetTTL задаёт срок действия токена.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(p *PasswordReset) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithResetClock подменяет источник времени.
func WithResetClock(now func() time.Time) ResetOption {
	return func(p *PasswordReset) {
		p.now = now
	}
}

// NewPasswordReset создаёт сервис сброса пароля. Ссылка в письме строится
// из linkBase добавлением параметра token.
func NewPasswordReset(store ResetStore, mailer Mailer, linkBase string, opts ...ResetOption) *PasswordReset {
	p := &PasswordReset{
		store:    store,
		mailer:   mailer,
		linkBase: linkBase,
		ttl:      defaultResetTTL,
		now:      time.Now,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request выдаёт пользователю email новый токен и отправляет ему ссылку для сброса пароля.
func (p *PasswordReset) Request(ctx context.Context, email string) error {
	if email == "" {
		return model.NewValidationError("email", "Email field was empty.")
	}

	token := p.newToken()
	if err := p.store.SetResetToken(ctx, email, token, p.now().Add(p.ttl)); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.NewValidationError("email", "Invalid email address, please check and try again.")
		}
		return err
	}

	link, err := p.link(token)
	if err != nil {
		return err
	}
	if err := p.mailer.Send(ctx, email, resetSubject, resetBody+link); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// Redeem устанавливает новый пароль по токену из письма и выполняет вход в сессию g.
// Токен действует один раз.
func (p *PasswordReset) Redeem(ctx context.Context, g *Gate, form ResetForm) (*model.User, error) {
	switch {
	case form.Token == "":
		return nil, model.NewValidationError("token", invalidResetLink)
	case form.Password1 == "":
		return nil, model.NewValidationError("password1", "Please enter a password.")
	case form.Password1 != form.Password2:
		return nil, model.NewValidationError("password2", "The password fields do not match.")
	}

	hash, err := HashPassword(form.Password1)
	if err != nil {
		return nil, err
	}

	email, err := p.store.RedeemResetToken(ctx, form.Token, hash, p.now())
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.NewValidationError("token", invalidResetLink)
		}
		return nil, err
	}

	if err := g.Login(ctx, email, true); err != nil {
		return nil, err
	}
	return g.User(), nil
}

func (p *PasswordReset) link(token string) (string, error) {
	u, err := url.Parse(p.linkBase)
	if err != nil {
		return "", fmt.Errorf("parse reset link base: %w", err)
	}
	q := u.Query()
	q.Set(resetTokenParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
