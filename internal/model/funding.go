package model

import (
	"github.com/shopspring/decimal"
)

// ResultTag задаёт итог обработки попытки платежа, сохраняемый в журнале.
type ResultTag string

const (
	ResultPending    ResultTag = "pending"
	ResultVerified   ResultTag = "verified"
	ResultUnverified ResultTag = "unverified"
	ResultSuccess    ResultTag = "success"
	ResultFailure    ResultTag = "failure"
)

// FundingEvent описывает неизменяемую запись журнала об одной попытке платежа.
// Реализуется типами CardCharge, PaypalIPN и GoogleWalletNotify.
type FundingEvent interface {
	Method() PaymentMethod
	// ExternalID возвращает идентификатор транзакции на стороне платёжной системы.
	ExternalID() string
}

// CardCharge описывает списание с банковской карты через шлюз.
type CardCharge struct {
	ID            int64
	UserID        *int64
	Request       []byte // JSON запроса с замаскированными реквизитами карты
	Response      []byte
	Result        ResultTag
	Amount        decimal.Decimal
	TransactionID string
}

func (CardCharge) Method() PaymentMethod { return PaymentMethodCard }

func (c CardCharge) ExternalID() string { return c.TransactionID }

// PaypalIPN хранит уведомление PayPal о платеже.
type PaypalIPN struct {
	UserID *int64
	Email  string
	Data   []byte // исходные поля уведомления в JSON
	Check  string // ответ PayPal на запрос проверки
	Amount decimal.Decimal
	TxnID  string
	Result ResultTag
}

func (PaypalIPN) Method() PaymentMethod { return PaymentMethodPaypal }

func (p PaypalIPN) ExternalID() string { return p.TxnID }

// GoogleWalletNotify хранит уведомление Google Wallet о новом заказе.
type GoogleWalletNotify struct {
	UserID      *int64
	Email       string
	Amount      decimal.Decimal
	Data        string // XML истории уведомлений
	OrderNumber string
	Result      ResultTag
}

func (GoogleWalletNotify) Method() PaymentMethod { return PaymentMethodGoogleWallet }

func (g GoogleWalletNotify) ExternalID() string { return g.OrderNumber }

// CardResult содержит разобранный ответ шлюза на списание с карты.
type CardResult struct {
	Ack           string
	Amount        decimal.Decimal
	TransactionID string
	Message       string
	Fields        map[string]string
}

// Success сообщает, подтвердил ли шлюз списание.
func (r *CardResult) Success() bool {
	return r.Ack == "Success" || r.Ack == "SuccessWithWarning"
}

// PaypalResult содержит итог обработки уведомления PayPal.
type PaypalResult struct {
	Verification  string
	PaymentStatus string
	TxnID         string
	UserID        *int64
	Email         string
	Amount        decimal.Decimal
	Credited      bool
}

// GoogleWalletResult содержит итог обработки уведомления Google Wallet.
type GoogleWalletResult struct {
	// Ignored выставляется для уведомлений, не относящихся к новому заказу.
	Ignored      bool
	SerialNumber string
	OrderNumber  string
	UserID       int64
	Amount       decimal.Decimal
	Email        string
	Credited     bool
}
