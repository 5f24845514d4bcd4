package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/premium-ledger/internal/model"
	"github.com/mmeshcher/premium-ledger/internal/session"
)

func validForm() RegistrationForm {
	return RegistrationForm{
		Name:      "Nick",
		Email1:    "nick@example.com",
		Email2:    "nick@example.com",
		Password1: "secret",
		Password2: "secret",
		Amount:    "$20",
	}
}

func TestRegistrationForm_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(f *RegistrationForm)
		field  string
	}{
		{name: "missing name", modify: func(f *RegistrationForm) { f.Name = "" }, field: "name"},
		{name: "name checked before email", modify: func(f *RegistrationForm) { f.Name, f.Email1 = "", "" }, field: "name"},
		{name: "missing email", modify: func(f *RegistrationForm) { f.Email1 = "" }, field: "email1"},
		{name: "malformed email", modify: func(f *RegistrationForm) { f.Email1, f.Email2 = "nick", "nick" }, field: "email1"},
		{name: "email in use", modify: func(f *RegistrationForm) { f.Email1, f.Email2 = "taken@example.com", "other@example.com" }, field: "email1"},
		{name: "email mismatch", modify: func(f *RegistrationForm) { f.Email2 = "nick@example.org" }, field: "email2"},
		{name: "missing password", modify: func(f *RegistrationForm) { f.Password1, f.Password2 = "", "" }, field: "password1"},
		{name: "password mismatch", modify: func(f *RegistrationForm) { f.Password2 = "secret2" }, field: "password2"},
	}

	users := newStubUsers(&model.User{ID: 1, Email: "taken@example.com"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.modify(&form)

			err := form.Validate(context.Background(), users)
			require.Error(t, err)

			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.NotEmpty(t, verr.Message)
		})
	}

	form := validForm()
	assert.NoError(t, form.Validate(context.Background(), users))
}

func TestRegister_CreatesAndLogsIn(t *testing.T) {
	users := newStubUsers()
	sess := session.New()
	g := NewGate(users, sess)
	ctx := context.Background()

	u, err := g.Register(ctx, validForm())
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, "nick@example.com", u.Email)
	assert.True(t, u.FundsSignup.Equal(decimal.NewFromInt(20)))
	assert.False(t, u.IsPremium())
	assert.Equal(t, "nick@example.com", sess.Get(PrincipalKey))
	assert.NotEqual(t, "secret", u.PasswordHash)

	ok, err := NewGate(users, session.New()).Verify(ctx, "nick@example.com", "secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegister_DuplicateEmailLeavesSessionAlone(t *testing.T) {
	users := newStubUsers(&model.User{ID: 1, Email: "nick@example.com"})
	sess := session.New()
	g := NewGate(users, sess)

	_, err := g.Register(context.Background(), validForm())
	require.True(t, model.IsValidation(err))
	assert.False(t, g.IsLoggedIn())
	assert.Len(t, users.byEmail, 1)
}
