package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/mailroom/internal/models"
)

func TestSentMailLedger_RetryFailedRecordReachesTerminalStatus(t *testing.T) {
	backend := newFakeBackend(t)
	backend.sent = []*models.SentMail{
		{
			ID:           "s1",
			To:           "bob@example.com",
			Subject:      "Quote",
			Body:         "Hi Bob",
			Status:       models.DeliveryStatusFailed,
			ErrorMessage: "connection refused",
			CreatedAt:    time.Now().UTC(),
		},
	}

	api := backend.api()
	notify := &testNotifier{}
	ledger := NewSentMailLedger(api, notify)

	ctx := context.Background()
	require.NoError(t, ledger.Refresh(ctx, false))
	require.Equal(t, models.DeliveryStatusFailed, ledger.Records()[0].Status)

	require.NoError(t, ledger.Retry(ctx, "s1"))

	require.Len(t, ledger.Records(), 1)
	record := ledger.Records()[0]
	assert.Equal(t, models.DeliveryStatusSent, record.Status, "the backend-decided status shows after refresh")
	assert.Empty(t, record.ErrorMessage)
	assert.Empty(t, notify.Errors())
}

func TestSentMailLedger_RetryNonFailedRecordSurfacesServerMessage(t *testing.T) {
	backend := newFakeBackend(t)
	backend.sent = []*models.SentMail{
		{ID: "s1", To: "bob@example.com", Subject: "Quote", Body: "Hi", Status: models.DeliveryStatusSent},
	}

	api := backend.api()
	notify := &testNotifier{}
	ledger := NewSentMailLedger(api, notify)

	ctx := context.Background()
	err := ledger.Retry(ctx, "s1")
	require.Error(t, err)
	require.Len(t, notify.Errors(), 1)
	assert.Equal(t, "Only failed emails can be retried", notify.Errors()[0])
}

func TestSentMailLedger_ComposeValidatesFields(t *testing.T) {
	backend := newFakeBackend(t)
	api := backend.api()
	notify := &testNotifier{}
	ledger := NewSentMailLedger(api, notify)

	ctx := context.Background()
	tests := []struct {
		name    string
		to      string
		subject string
		body    string
	}{
		{name: "missing recipient", to: "", subject: "Hi", body: "Hello"},
		{name: "missing subject", to: "bob@example.com", subject: "  ", body: "Hello"},
		{name: "missing body", to: "bob@example.com", subject: "Hi", body: "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Compose(ctx, tt.to, tt.subject, tt.body, nil)
			assert.Error(t, err)
		})
	}

	_, _, _, _, sentCalls := backend.counts()
	assert.Equal(t, 0, sentCalls, "validation failures must not reach the backend")
	assert.Len(t, notify.Errors(), len(tests))
}

func TestSentMailLedger_DeleteRemovesRecord(t *testing.T) {
	backend := newFakeBackend(t)
	backend.sent = []*models.SentMail{
		{ID: "s1", To: "a@example.com", Subject: "A", Body: "a", Status: models.DeliveryStatusSent},
		{ID: "s2", To: "b@example.com", Subject: "B", Body: "b", Status: models.DeliveryStatusSent},
	}

	api := backend.api()
	notify := &testNotifier{}
	ledger := NewSentMailLedger(api, notify)

	ctx := context.Background()
	require.NoError(t, ledger.Refresh(ctx, false))
	require.Len(t, ledger.Records(), 2)

	require.NoError(t, ledger.Delete(ctx, "s1"))

	require.Len(t, ledger.Records(), 1)
	assert.Equal(t, "s2", ledger.Records()[0].ID)
}
