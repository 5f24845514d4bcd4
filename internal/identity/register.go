package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

var (
	defaultPledge = decimal.NewFromInt(10)
	emailPattern  = regexp.MustCompile(`.+@.+`)
)

// RegistrationForm содержит данные формы регистрации.
type RegistrationForm struct {
	Name      string `json:"name"`
	Email1    string `json:"email1"`
	Email2    string `json:"email2"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
	Amount    string `json:"amount"`
}

// ParseAmount разбирает обещанную сумму: "$" в начале отбрасывается,
// пустое значение даёт 10, неположительное или нечисловое даёт 1.
func ParseAmount(raw string) decimal.Decimal {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "$")
	if raw == "" {
		return defaultPledge
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return amount
}

// Validate проверяет форму; первая найденная ошибка возвращается как *model.ValidationError.
func (f *RegistrationForm) Validate(ctx context.Context, users UserStore) error {
	switch {
	case f.Name == "":
		return model.NewValidationError("name", "Please enter your name.")
	case f.Email1 == "":
		return model.NewValidationError("email1", "Please enter your email address.")
	case !emailPattern.MatchString(f.Email1):
		return model.NewValidationError("email1", "The email address does not appear to be valid.")
	}

	inUse, err := users.IsEmailInUse(ctx, f.Email1)
	if err != nil {
		return err
	}

	switch {
	case inUse:
		return model.NewValidationError("email1", "Welcome back, you've already registered. Please log in to your account.")
	case f.Email1 != f.Email2:
		return model.NewValidationError("email2", "The confirm email must match the email address.")
	case f.Password1 == "":
		return model.NewValidationError("password1", "Please enter a password.")
	case f.Password1 != f.Password2:
		return model.NewValidationError("password2", "The confirm password must match the password.")
	}
	return nil
}

// Register создаёт аккаунт по форме и сразу выполняет вход.
func (g *Gate) Register(ctx context.Context, form RegistrationForm) (*model.User, error) {
	if err := form.Validate(ctx, g.users); err != nil {
		return nil, err
	}

	hash, err := HashPassword(form.Password1)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Name:         form.Name,
		Email:        form.Email1,
		PasswordHash: hash,
		FundsSignup:  ParseAmount(form.Amount),
	}

	if _, err := g.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, model.ErrUserExists) {
			return nil, model.NewValidationError("email1", "Welcome back, you've already registered. Please log in to your account.")
		}
		return nil, err
	}

	if err := g.Login(ctx, u.Email, true); err != nil {
		return nil, err
	}
	return g.user, nil
}
