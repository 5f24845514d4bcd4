package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

// SpendVotes списывает count голосов с баланса пользователя и добавляет их к задаче issueID.
// Списание выполняется только при достаточном балансе, иначе возвращается model.ErrVoteRace.
func (r *PostgresRepository) SpendVotes(ctx context.Context, userID, issueID, count int64) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		tag, err := tx.db.Exec(ctx,
			`UPDATE users SET votes_free = votes_free - $2 WHERE id = $1 AND votes_free >= $2`,
			userID, count,
		)
		if err != nil {
			return fmt.Errorf("decrement free votes: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrVoteRace
		}

		_, err = tx.db.Exec(ctx,
			`INSERT INTO votes (user_id, issue_id, vote_count) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, issue_id) DO UPDATE SET vote_count = votes.vote_count + EXCLUDED.vote_count`,
			userID, issueID, count,
		)
		if err != nil {
			return fmt.Errorf("upsert vote: %w", err)
		}
		return nil
	})
}

// GetUserVotes возвращает голоса пользователя по убыванию количества.
func (r *PostgresRepository) GetUserVotes(ctx context.Context, userID int64) ([]model.Vote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, issue_id, vote_count
		 FROM votes
		 WHERE user_id = $1
		 ORDER BY vote_count DESC, issue_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select votes: %w", err)
	}
	defer rows.Close()

	var res []model.Vote
	for rows.Next() {
		var v model.Vote
		if err := rows.Scan(&v.UserID, &v.IssueID, &v.VoteCount); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetAllVotes возвращает суммы голосов по задачам, кроме задач с нулевой суммой.
// Если limit больше нуля, возвращается не более limit строк.
func (r *PostgresRepository) GetAllVotes(ctx context.Context, limit int) ([]model.IssueVotes, error) {
	query := `SELECT issue_id, SUM(vote_count)::bigint AS total
		 FROM votes
		 GROUP BY issue_id
		 HAVING SUM(vote_count) <> 0
		 ORDER BY total DESC, issue_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select vote totals: %w", err)
	}
	defer rows.Close()

	var res []model.IssueVotes
	for rows.Next() {
		var v model.IssueVotes
		if err := rows.Scan(&v.IssueID, &v.VoteCount); err != nil {
			return nil, fmt.Errorf("scan vote total: %w", err)
		}
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
