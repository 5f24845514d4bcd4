package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetSession возвращает данные сессии, если срок её действия истекает позже now.
// Для отсутствующей или просроченной сессии возвращается пустая строка.
func (r *PostgresRepository) GetSession(ctx context.Context, id string, now int64) (string, error) {
	var data string
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM sessions WHERE id = $1 AND expires > $2`,
		id, now,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select session: %w", err)
	}
	return data, nil
}

// UpsertSession записывает данные сессии одним запросом, заменяя существующую строку.
func (r *PostgresRepository) UpsertSession(ctx context.Context, id, data string, expires int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, data, expires) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires = EXCLUDED.expires`,
		id, data, expires,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession удаляет сессию. Отсутствие строки ошибкой не считается.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions удаляет все сессии, срок действия которых истёк до now.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
