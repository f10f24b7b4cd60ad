package client

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/folioworks/mailroom/internal/models"
)

// SentMailLedger tracks outbound compose emails independently of inbound
// conversations. The backend is the sole authority on each record's terminal
// status; the ledger only reflects what it fetches.
type SentMailLedger struct {
	api    *API
	notify Notifier

	mu        sync.Mutex
	records   []*models.SentMail
	composing bool
}

// NewSentMailLedger creates a new SentMailLedger.
func NewSentMailLedger(api *API, notify Notifier) *SentMailLedger {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &SentMailLedger{
		api:    api,
		notify: notify,
	}
}

// Refresh fetches the sent-mail list. Silent failures are swallowed.
func (l *SentMailLedger) Refresh(ctx context.Context, silent bool) error {
	records, err := l.api.ListSentMail(ctx)
	if err != nil {
		if silent {
			log.Printf("SentMailLedger: Silent refresh failed: %v", err)
		} else {
			l.notify.Error("Failed to load sent emails")
		}
		return err
	}

	l.mu.Lock()
	l.records = records
	l.mu.Unlock()
	return nil
}

// Records returns the current sent-mail list.
func (l *SentMailLedger) Records() []*models.SentMail {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records
}

// Composing reports whether a compose is in flight.
func (l *SentMailLedger) Composing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.composing
}

// Compose sends a standalone email. All three fields are required; a missing
// field surfaces a validation message without a network call. On success the
// ledger is refreshed; on failure the server's message is surfaced when
// present.
func (l *SentMailLedger) Compose(ctx context.Context, to, subject, body string, attachments []models.Attachment) error {
	to = strings.TrimSpace(to)
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if to == "" || subject == "" || body == "" {
		l.notify.Error("Recipient, subject and message are all required")
		return errors.New("recipient, subject and message are all required")
	}

	l.mu.Lock()
	if l.composing {
		l.mu.Unlock()
		return nil
	}
	l.composing = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.composing = false
		l.mu.Unlock()
	}()

	if _, err := l.api.Compose(ctx, to, subject, body, attachments); err != nil {
		l.notify.Error(errorMessage(err, "Failed to send the email"))
		return err
	}

	return l.Refresh(ctx, true)
}

// Retry re-attempts a failed record. The resulting status comes from the
// backend via the follow-up refresh, never assumed client-side.
func (l *SentMailLedger) Retry(ctx context.Context, id string) error {
	if _, err := l.api.RetrySentMail(ctx, id); err != nil {
		l.notify.Error(errorMessage(err, "Failed to retry sending"))
		return err
	}
	return l.Refresh(ctx, true)
}

// Delete removes a record from the ledger.
func (l *SentMailLedger) Delete(ctx context.Context, id string) error {
	if err := l.api.DeleteSentMail(ctx, id); err != nil {
		l.notify.Error(errorMessage(err, "Failed to delete the email"))
		return err
	}

	l.mu.Lock()
	kept := l.records[:0]
	for _, record := range l.records {
		if record.ID != id {
			kept = append(kept, record)
		}
	}
	l.records = kept
	l.mu.Unlock()
	return nil
}

// errorMessage prefers the server-provided message over the generic fallback.
func errorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
