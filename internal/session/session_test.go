package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_EncodeDecode(t *testing.T) {
	s := New()
	s.Set("email", "user@example.com")
	require.True(t, s.Modified())

	data, err := s.Encode()
	require.NoError(t, err)

	restored, err := Decode(s.ID(), data)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", restored.Get("email"))
	assert.False(t, restored.Modified())
}

func TestSession_EmptyEncodesToEmptyString(t *testing.T) {
	s := New()
	s.Set("email", "user@example.com")
	s.Delete("email")

	data, err := s.Encode()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestSession_DecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("sid", "not json")
	require.Error(t, err)
}

func TestSession_SetSameValueIsNotModification(t *testing.T) {
	s, err := Decode("sid", `{"email":"a@b"}`)
	require.NoError(t, err)

	s.Set("email", "a@b")
	s.Delete("missing")
	assert.False(t, s.Modified())
}

func TestSession_SaveSkipsUntouchedEmptySession(t *testing.T) {
	repo := newMemRepo()
	store, _ := newTestStore(repo)
	ctx := context.Background()

	s := New()
	require.NoError(t, s.Save(ctx, store))
	assert.Empty(t, repo.rows)

	s.Set("email", "a@b")
	require.NoError(t, s.Save(ctx, store))
	assert.Len(t, repo.rows, 1)
	assert.False(t, s.Modified())

	s.Delete("email")
	require.NoError(t, s.Save(ctx, store))
	assert.Empty(t, repo.rows)
}

func TestSession_Context(t *testing.T) {
	s := New()
	ctx := NewContext(context.Background(), s)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestSession_SaveSlidesExpiry(t *testing.T) {
	repo := newMemRepo()
	store, clock := newTestStore(repo)
	ctx := context.Background()

	s := New()
	s.Set("email", "a@b")
	require.NoError(t, s.Save(ctx, store))

	// запросы каждые 40 минут при сроке жизни в час не должны терять сессию
	for i := 0; i < 4; i++ {
		clock.t = clock.t.Add(40 * time.Minute)

		data, err := store.Read(ctx, s.ID())
		require.NoError(t, err)
		require.NotEmpty(t, data, "active session expired after request %d", i+1)

		loaded, err := Decode(s.ID(), data)
		require.NoError(t, err)
		require.False(t, loaded.Modified())
		require.NoError(t, loaded.Save(ctx, store))
	}
}
