package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/mail"
	"github.com/folioworks/mailroom/internal/models"
)

// stubSender records outgoing messages instead of delivering them.
type stubSender struct {
	mu         sync.Mutex
	providerID string
	err        error
	sent       []*mail.OutgoingMessage
}

func (s *stubSender) Send(_ context.Context, msg *mail.OutgoingMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return s.providerID, nil
}

func (s *stubSender) Name() string { return "stub" }

func (s *stubSender) sentMessages() []*mail.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*mail.OutgoingMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// stubSource hands out a fixed sender and settings, or a fixed error.
type stubSource struct {
	sender   mail.Sender
	settings *models.MailSettings
	err      error
}

func (s *stubSource) Mailer(context.Context) (mail.Sender, *models.MailSettings, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.sender, s.settings, nil
}

func (s *stubSource) CanSend(context.Context) bool { return s.err == nil }

// newStubMailer returns a source that always succeeds, plus its sender for
// inspecting deliveries.
func newStubMailer() (*stubSource, *stubSender) {
	sender := &stubSender{providerID: "<stub-1@mail.example.com>"}
	source := &stubSource{
		sender:   sender,
		settings: &models.MailSettings{FromAddress: "owner@example.com"},
	}
	return source, sender
}

// seedConversation inserts a conversation with one inbound message.
func seedConversation(t *testing.T, pool *pgxpool.Pool, messageIDHeader string) *models.Conversation {
	t.Helper()

	conv := &models.Conversation{
		SenderName:      "Dana Visitor",
		SenderEmail:     "dana@example.com",
		Subject:         "Commission request",
		Message:         "I'd like to talk about a commission.",
		MessageIDHeader: messageIDHeader,
		ReceivedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	created, err := db.CreateConversation(context.Background(), pool, conv)
	require.NoError(t, err)
	require.True(t, created)
	return conv
}
