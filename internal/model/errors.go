package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists возвращается при попытке создать пользователя с занятым email.
	ErrUserExists = errors.New("user already exists")
	// ErrLookup возвращается, если сессия ссылается на пользователя, которого больше нет.
	ErrLookup = errors.New("authenticated user lookup failed")
	// ErrNotLoggedIn возвращается операциями, требующими входа.
	ErrNotLoggedIn = errors.New("user is not logged in")
	// ErrNoFreeVotes возвращается, если у пользователя не осталось голосов.
	ErrNoFreeVotes = errors.New("no free votes")
	// ErrVoteRace возвращается, если баланс голосов изменился параллельным запросом.
	ErrVoteRace = errors.New("free votes changed concurrently")
)

// ValidationError описывает ошибку во входных данных пользователя.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// GatewayError описывает сбой обращения к платёжной системе или её отказ.
type GatewayError struct {
	Method PaymentMethod
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway: %v", e.Method, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsValidation сообщает, является ли err ошибкой валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsGateway сообщает, является ли err ошибкой платёжного шлюза.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
