// Package session хранит данные сессий в реляционной БД вместо памяти процесса,
// чтобы вход пользователя переживал перезапуски и работал за несколькими узлами.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Repository описывает хранилище строк сессий.
type Repository interface {
	GetSession(ctx context.Context, id string, now int64) (string, error)
	UpsertSession(ctx context.Context, id, data string, expires int64) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now int64) (int64, error)
}

// Store реализует долговременное хранилище сессий с ограниченным сроком жизни.
// Store единственный, кто пишет строки сессий.
type Store struct {
	repo     Repository
	lifetime time.Duration
	now      func() time.Time
}

// NewStore создаёт хранилище сессий со сроком жизни lifetime.
func NewStore(repo Repository, lifetime time.Duration) *Store {
	return &Store{
		repo:     repo,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Open ничего не делает: соединениями управляет репозиторий.
func (s *Store) Open() error { return nil }

// Close ничего не делает: соединениями управляет репозиторий.
func (s *Store) Close() error { return nil }

// Read возвращает данные сессии id или пустую строку, если сессии нет или она истекла.
func (s *Store) Read(ctx context.Context, id string) (string, error) {
	data, err := s.repo.GetSession(ctx, id, s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return data, nil
}

// Write заменяет данные сессии и продлевает срок её действия.
// Запись пустых данных удаляет сессию.
func (s *Store) Write(ctx context.Context, id, data string) error {
	if data == "" {
		return s.Destroy(ctx, id)
	}

	expires := s.now().Add(s.lifetime).Unix()
	if err := s.repo.UpsertSession(ctx, id, data, expires); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Destroy удаляет сессию. Повторный вызов безопасен.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// GC удаляет все истёкшие сессии.
func (s *Store) GC(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("gc sessions: %w", err)
	}
	return n, nil
}

// RunGC периодически удаляет истёкшие сессии, пока не отменён ctx.
func (s *Store) RunGC(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.GC(ctx)
			if err != nil {
				logger.Error("session gc failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}
