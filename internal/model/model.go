// Package model содержит доменные сущности сервиса премиум-аккаунтов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет владельца аккаунта.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	// VotesFree содержит доступный для расходования баланс голосов.
	VotesFree int64
	// FundsTotal хранит сумму всех зачисленных средств за всё время.
	FundsTotal decimal.Decimal
	// FundsCount считает успешные зачисления; ненулевое значение означает премиум-статус.
	FundsCount int64
	// FundsSignup хранит сумму, обещанную при регистрации и ещё не зачисленную.
	FundsSignup    decimal.Decimal
	NotifyByEmail  bool
	LastGuiLogin   *time.Time
	LastGuiVersion string
	CreatedAt      time.Time
}

// IsPremium сообщает, было ли у пользователя хотя бы одно успешное зачисление.
func (u *User) IsPremium() bool {
	return u.FundsCount != 0
}

// Vote описывает голоса пользователя, отданные за одну задачу.
type Vote struct {
	UserID    int64 `json:"userId"`
	IssueID   int64 `json:"issueId"`
	VoteCount int64 `json:"voteCount"`
}

// IssueVotes содержит сумму голосов всех пользователей за задачу.
type IssueVotes struct {
	IssueID   int64 `json:"issueId"`
	VoteCount int64 `json:"voteCount"`
}

// PaymentMethod определяет канал поступления средств.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodPaypal       PaymentMethod = "paypal"
	PaymentMethodGoogleWallet PaymentMethod = "google"
)

// PaymentInfo описывает строку истории платежей пользователя.
type PaymentInfo struct {
	Method  PaymentMethod
	Amount  decimal.Decimal
	Result  string
	Created time.Time
}
