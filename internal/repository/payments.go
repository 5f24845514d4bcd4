package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

// InsertCardCharge сохраняет запрос на списание с карты до обращения к шлюзу.
func (r *PostgresRepository) InsertCardCharge(ctx context.Context, c *model.CardCharge) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO card_charges (user_id, request, result, amount)
		 VALUES ($1, $2, $3, $4::numeric) RETURNING id`,
		c.UserID, c.Request, string(c.Result), c.Amount.String(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert card charge: %w", err)
	}
	return id, nil
}

// UpdateCardCharge сохраняет ответ шлюза по ранее записанному запросу.
func (q *queries) UpdateCardCharge(ctx context.Context, c *model.CardCharge) error {
	_, err := q.db.Exec(ctx,
		`UPDATE card_charges SET
			response = $2, result = $3, amount = $4::numeric, transaction_id = $5, updated_at = now()
		 WHERE id = $1`,
		c.ID, c.Response, string(c.Result), c.Amount.String(), c.TransactionID,
	)
	if err != nil {
		return fmt.Errorf("update card charge: %w", err)
	}
	return nil
}

// InsertPaypalIPN сохраняет уведомление PayPal вместе с результатом его проверки.
func (q *queries) InsertPaypalIPN(ctx context.Context, p *model.PaypalIPN) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO paypal_ipns (user_id, email, ipn_data, ipn_check, amount, txn_id, result)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		p.UserID, p.Email, p.Data, p.Check, p.Amount.String(), p.TxnID, string(p.Result),
	)
	if err != nil {
		return fmt.Errorf("insert paypal ipn: %w", err)
	}
	return nil
}

// InsertGoogleWalletNotify сохраняет уведомление Google Wallet.
func (q *queries) InsertGoogleWalletNotify(ctx context.Context, g *model.GoogleWalletNotify) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO gwallet_notifications (user_id, email, amount, data, order_number, result)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		g.UserID, g.Email, g.Amount.String(), g.Data, g.OrderNumber, string(g.Result),
	)
	if err != nil {
		return fmt.Errorf("insert google wallet notification: %w", err)
	}
	return nil
}

// ClaimFunding резервирует внешнюю транзакцию для зачисления.
// Возвращает false, если транзакция этого канала уже была зачислена.
func (q *queries) ClaimFunding(ctx context.Context, method model.PaymentMethod, externalID string, userID int64, amount decimal.Decimal) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO funding_credits (method, external_id, user_id, amount)
		 VALUES ($1, $2, $3, $4::numeric)
		 ON CONFLICT (method, external_id) DO NOTHING`,
		string(method), externalID, userID, amount.String(),
	)
	if err != nil {
		return false, fmt.Errorf("claim funding: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetUserPayments возвращает историю платежей пользователя по всем каналам.
func (r *PostgresRepository) GetUserPayments(ctx context.Context, userID int64) ([]model.PaymentInfo, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT method, amount::text, result, created_at FROM (
			SELECT 'paypal' AS method, amount, ipn_check AS result, created_at
			FROM paypal_ipns WHERE user_id = $1
			UNION ALL
			SELECT 'google' AS method, amount, result, created_at
			FROM gwallet_notifications WHERE user_id = $1
			UNION ALL
			SELECT 'card' AS method, amount, result, created_at
			FROM card_charges WHERE user_id = $1
		 ) AS payments
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentInfo
	for rows.Next() {
		var (
			method  string
			amount  string
			result  string
			created time.Time
		)
		if err := rows.Scan(&method, &amount, &result, &created); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}

		sum, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse payment amount: %w", err)
		}

		res = append(res, model.PaymentInfo{
			Method:  model.PaymentMethod(method),
			Amount:  sum,
			Result:  result,
			Created: created,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
