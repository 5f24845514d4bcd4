package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

const userColumns = `id, name, email, password_hash, votes_free, funds_total::text, funds_count,
	funds_signup::text, notify_by_email, last_gui_login, COALESCE(last_gui_version, ''), created_at`

// CreateUser создаёт нового пользователя и возвращает его идентификатор.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, funds_signup) VALUES ($1, $2, $3, $4::numeric) RETURNING id`,
		u.Name, u.Email, u.PasswordHash, u.FundsSignup.String(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", model.ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// IsEmailInUse проверяет, зарегистрирован ли пользователь с таким email.
func (r *PostgresRepository) IsEmailInUse(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// GetUserByEmail возвращает пользователя по точному совпадению email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u           model.User
		fundsTotal  string
		fundsSignup string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.VotesFree, &fundsTotal,
		&u.FundsCount, &fundsSignup, &u.NotifyByEmail, &u.LastGuiLogin, &u.LastGuiVersion, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	if u.FundsTotal, err = decimal.NewFromString(fundsTotal); err != nil {
		return nil, fmt.Errorf("parse funds total: %w", err)
	}
	if u.FundsSignup, err = decimal.NewFromString(fundsSignup); err != nil {
		return nil, fmt.Errorf("parse funds signup: %w", err)
	}
	return &u, nil
}

// UpdatePasswordHash заменяет хеш пароля пользователя.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`,
		userID, hash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetResetToken сохраняет токен сброса пароля пользователя email до момента expires.
// Новый токен заменяет выданный ранее.
func (r *PostgresRepository) SetResetToken(ctx context.Context, email, token string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET reset_token = $2, reset_expires = $3 WHERE email = $1`,
		email, token, expires,
	)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// RedeemResetToken одним запросом заменяет хеш пароля владельца действующего токена
// и гасит токен. Возвращает email владельца или model.ErrUserNotFound.
func (r *PostgresRepository) RedeemResetToken(ctx context.Context, token, hash string, now time.Time) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET password_hash = $2, reset_token = NULL, reset_expires = NULL
		 WHERE reset_token = $1 AND reset_expires > $3
		 RETURNING email`,
		token, hash, now,
	).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", model.ErrUserNotFound
		}
		return "", fmt.Errorf("redeem reset token: %w", err)
	}
	return email, nil
}

// SetNotifyByEmail сохраняет согласие пользователя на рассылку.
func (r *PostgresRepository) SetNotifyByEmail(ctx context.Context, userID int64, notify bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET notify_by_email = $2 WHERE id = $1`,
		userID, notify,
	)
	if err != nil {
		return fmt.Errorf("update notify by email: %w", err)
	}
	return nil
}

// RecordGuiLogin запоминает время и версию последнего входа из настольного приложения.
func (r *PostgresRepository) RecordGuiLogin(ctx context.Context, email, version string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_gui_login = $3, last_gui_version = $2 WHERE email = $1`,
		email, version, at,
	)
	if err != nil {
		return fmt.Errorf("record gui login: %w", err)
	}
	return nil
}

// CreditUser одним запросом увеличивает баланс голосов, сумму и число зачислений.
func (q *queries) CreditUser(ctx context.Context, userID int64, funds decimal.Decimal, votes int64) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET
			votes_free = votes_free + $2,
			funds_total = funds_total + $3::numeric,
			funds_count = funds_count + 1
		 WHERE id = $1`,
		userID, votes, funds.String(),
	)
	if err != nil {
		return fmt.Errorf("credit user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit user %d: %w", userID, model.ErrUserNotFound)
	}
	return nil
}
