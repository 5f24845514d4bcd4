package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func capture(m *SMTPMailer, err error) *capturedMail {
	c := &capturedMail{}
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		c.addr, c.auth, c.from, c.to, c.msg = addr, a, from, to, string(msg)
		return err
	}
	return c
}

func TestSMTPMailer_Send(t *testing.T) {
	m, err := NewSMTPMailer("mail.example.com:587", "robot", "secret", "premium@example.com")
	require.NoError(t, err)
	c := capture(m, nil)

	require.NoError(t, m.Send(context.Background(), "a@example.com", "Password reset", "Hello,\n\nlink"))

	assert.Equal(t, "mail.example.com:587", c.addr)
	assert.NotNil(t, c.auth)
	assert.Equal(t, "premium@example.com", c.from)
	assert.Equal(t, []string{"a@example.com"}, c.to)

	headers, body, ok := strings.Cut(c.msg, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, headers, "To: a@example.com")
	assert.Contains(t, headers, "Subject: Password reset")
	assert.Equal(t, "Hello,\r\n\r\nlink", body)
}

func TestSMTPMailer_WithoutCredentials(t *testing.T) {
	m, err := NewSMTPMailer("localhost:25", "", "", "premium@example.com")
	require.NoError(t, err)
	c := capture(m, nil)

	require.NoError(t, m.Send(context.Background(), "a@example.com", "s", "b"))
	assert.Nil(t, c.auth)
}

func TestSMTPMailer_Errors(t *testing.T) {
	_, err := NewSMTPMailer("no-port", "", "", "premium@example.com")
	require.Error(t, err)

	m, err := NewSMTPMailer("localhost:25", "", "", "premium@example.com")
	require.NoError(t, err)
	sendErr := errors.New("550 mailbox unavailable")
	capture(m, sendErr)
	require.ErrorIs(t, m.Send(context.Background(), "a@example.com", "s", "b"), sendErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := capture(m, nil)
	require.ErrorIs(t, m.Send(ctx, "a@example.com", "s", "b"), context.Canceled)
	assert.Empty(t, c.to)
}

func TestLogMailer_Send(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	require.NoError(t, m.Send(context.Background(), "a@example.com", "Password reset", "link"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "a@example.com", entries[0].ContextMap()["to"])
	assert.Equal(t, "link", entries[0].ContextMap()["body"])
}
