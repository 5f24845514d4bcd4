package session

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"
)

type contextKey struct{}

// Session хранит данные сессии текущего запроса.
// Передаётся явно через контекст запроса и сохраняется в Store после изменения.
type Session struct {
	id       string
	values   map[string]string
	modified bool
}

// New создаёт пустую сессию с новым идентификатором.
func New() *Session {
	return &Session{
		id:     uuid.NewString(),
		values: map[string]string{},
	}
}

// Decode восстанавливает сессию id из сохранённых данных.
func Decode(id, data string) (*Session, error) {
	s := &Session{id: id, values: map[string]string{}}
	if data == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(data), &s.values); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string { return s.id }

// Get возвращает значение ключа или пустую строку.
func (s *Session) Get(key string) string { return s.values[key] }

func (s *Session) Set(key, value string) {
	if s.values[key] == value {
		return
	}
	s.values[key] = value
	s.modified = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.modified = true
}

// Modified сообщает, менялись ли данные после загрузки.
func (s *Session) Modified() bool { return s.modified }

// Encode сериализует данные сессии. Пустая сессия кодируется пустой строкой.
func (s *Session) Encode() (string, error) {
	if len(s.values) == 0 {
		return "", nil
	}
	b, err := json.Marshal(s.values)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

// Values возвращает копию данных сессии.
func (s *Session) Values() map[string]string {
	return maps.Clone(s.values)
}

// Save записывает сессию в store и тем самым продлевает срок её действия.
// Пустая сессия, которая не менялась, в хранилище не попадает.
func (s *Session) Save(ctx context.Context, store *Store) error {
	if !s.modified && len(s.values) == 0 {
		return nil
	}
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := store.Write(ctx, s.id, data); err != nil {
		return err
	}
	s.modified = false
	return nil
}

// NewContext возвращает копию ctx с сессией s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext извлекает сессию из контекста запроса.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}
