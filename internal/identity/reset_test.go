package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/premium-ledger/internal/model"
	"github.com/mmeshcher/premium-ledger/internal/session"
)

type resetEntry struct {
	email   string
	expires time.Time
}

// stubResets хранит токены поверх stubUsers.
type stubResets struct {
	users  *stubUsers
	tokens map[string]resetEntry
}

func newStubResets(users *stubUsers) *stubResets {
	return &stubResets{users: users, tokens: map[string]resetEntry{}}
}

func (s *stubResets) SetResetToken(ctx context.Context, email, token string, expires time.Time) error {
	if _, ok := s.users.byEmail[email]; !ok {
		return model.ErrUserNotFound
	}
	for t, e := range s.tokens {
		if e.email == email {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = resetEntry{email: email, expires: expires}
	return nil
}

func (s *stubResets) RedeemResetToken(ctx context.Context, token, hash string, now time.Time) (string, error) {
	e, ok := s.tokens[token]
	if !ok || !e.expires.After(now) {
		return "", model.ErrUserNotFound
	}
	delete(s.tokens, token)
	s.users.byEmail[e.email].PasswordHash = hash
	return e.email, nil
}

type sentMail struct {
	to, subject, body string
}

type stubMailer struct {
	sent []sentMail
	err  error
}

func (m *stubMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func tokenFromMail(t *testing.T, m sentMail) string {
	t.Helper()
	idx := strings.Index(m.body, "https://")
	require.GreaterOrEqual(t, idx, 0, "mail has no link: %q", m.body)
	link, err := url.Parse(m.body[idx:])
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestPasswordReset_RequestAndRedeem(t *testing.T) {
	stored := &model.User{ID: 1, Email: "a@example.com", PasswordHash: md5Hex("forgotten")}
	users := newStubUsers(stored)
	mailer := &stubMailer{}
	reset := NewPasswordReset(newStubResets(users), mailer, "https://example.com/premium/reset")
	ctx := context.Background()

	require.NoError(t, reset.Request(ctx, "a@example.com"))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "a@example.com", mailer.sent[0].to)
	assert.Equal(t, "Password reset", mailer.sent[0].subject)
	assert.True(t, strings.HasPrefix(mailer.sent[0].body, "Hello,\n\n"))
	token := tokenFromMail(t, mailer.sent[0])

	sess := session.New()
	g := NewGate(users, sess)
	u, err := reset.Redeem(ctx, g, ResetForm{Token: token, Password1: "fresh", Password2: "fresh"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.ID)
	assert.Equal(t, "a@example.com", sess.Get(PrincipalKey))

	ok, upgrade, err := CheckPassword(stored.PasswordHash, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, upgrade, "new password is stored as bcrypt")

	_, err = reset.Redeem(ctx, NewGate(users, session.New()), ResetForm{Token: token, Password1: "again", Password2: "again"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "token", verr.Field)
	ok, _, err = CheckPassword(stored.PasswordHash, "fresh")
	require.NoError(t, err)
	assert.True(t, ok, "a redeemed token cannot change the password twice")
}

func TestPasswordReset_RequestValidation(t *testing.T) {
	users := newStubUsers(&model.User{ID: 1, Email: "a@example.com"})
	mailer := &stubMailer{}
	reset := NewPasswordReset(newStubResets(users), mailer, "https://example.com/reset")
	ctx := context.Background()

	tests := []struct {
		name    string
		email   string
		wantMsg string
	}{
		{"empty email", "", "Email field was empty."},
		{"unknown email", "nobody@example.com", "Invalid email address, please check and try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reset.Request(ctx, tt.email)
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "email", verr.Field)
			assert.Equal(t, tt.wantMsg, verr.Message)
		})
	}
	assert.Empty(t, mailer.sent)
}

func TestPasswordReset_MailFailureIsReported(t *testing.T) {
	users := newStubUsers(&model.User{ID: 1, Email: "a@example.com"})
	mailer := &stubMailer{err: errors.New("connection refused")}
	reset := NewPasswordReset(newStubResets(users), mailer, "https://example.com/reset")

	err := reset.Request(context.Background(), "a@example.com")
	require.ErrorIs(t, err, mailer.err)
	var verr *model.ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestPasswordReset_RedeemValidation(t *testing.T) {
	stored := &model.User{ID: 1, Email: "a@example.com", PasswordHash: mustHash(t, "old")}
	users := newStubUsers(stored)
	resets := newStubResets(users)
	require.NoError(t, resets.SetResetToken(context.Background(), "a@example.com", "tok", time.Now().Add(time.Hour)))
	reset := NewPasswordReset(resets, &stubMailer{}, "https://example.com/reset")

	tests := []struct {
		name      string
		form      ResetForm
		wantField string
	}{
		{"missing token", ResetForm{Password1: "new", Password2: "new"}, "token"},
		{"unknown token", ResetForm{Token: "other", Password1: "new", Password2: "new"}, "token"},
		{"empty password", ResetForm{Token: "tok"}, "password1"},
		{"passwords differ", ResetForm{Token: "tok", Password1: "new", Password2: "neu"}, "password2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := session.New()
			_, err := reset.Redeem(context.Background(), NewGate(users, sess), tt.form)
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Empty(t, sess.Get(PrincipalKey))
		})
	}

	ok, _, err := CheckPassword(stored.PasswordHash, "old")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, resets.tokens, "tok", "rejected forms keep the token usable")
}

func TestPasswordReset_TokenExpires(t *testing.T) {
	users := newStubUsers(&model.User{ID: 1, Email: "a@example.com"})
	mailer := &stubMailer{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reset := NewPasswordReset(newStubResets(users), mailer, "https://example.com/reset",
		WithResetTTL(time.Hour),
		WithResetClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	require.NoError(t, reset.Request(ctx, "a@example.com"))
	token := tokenFromMail(t, mailer.sent[0])

	now = now.Add(time.Hour)
	_, err := reset.Redeem(ctx, NewGate(users, session.New()), ResetForm{Token: token, Password1: "new", Password2: "new"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "token", verr.Field)
}

func TestPasswordReset_NewRequestReplacesToken(t *testing.T) {
	users := newStubUsers(&model.User{ID: 1, Email: "a@example.com"})
	mailer := &stubMailer{}
	reset := NewPasswordReset(newStubResets(users), mailer, "https://example.com/reset?lang=en")
	ctx := context.Background()

	require.NoError(t, reset.Request(ctx, "a@example.com"))
	require.NoError(t, reset.Request(ctx, "a@example.com"))
	require.Len(t, mailer.sent, 2)

	first, second := tokenFromMail(t, mailer.sent[0]), tokenFromMail(t, mailer.sent[1])
	assert.NotEqual(t, first, second)
	assert.Contains(t, mailer.sent[1].body, "lang=en")

	_, err := reset.Redeem(ctx, NewGate(users, session.New()), ResetForm{Token: first, Password1: "new", Password2: "new"})
	require.Error(t, err)
	_, err = reset.Redeem(ctx, NewGate(users, session.New()), ResetForm{Token: second, Password1: "new", Password2: "new"})
	require.NoError(t, err)
}
