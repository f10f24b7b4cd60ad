package client

import (
	"context"
	"strings"
	"sync"
)

// ReplySender composes and transmits a reply within the active conversation.
// The draft body and pending attachments survive a failed send so the user
// can retry without retyping.
type ReplySender struct {
	api      *API
	store    *ConversationStore
	threads  *ThreadLoader
	ledger   *SentMailLedger
	uploader *AttachmentUploader
	notify   Notifier

	mu      sync.Mutex
	draft   string
	sending bool
}

// NewReplySender creates a new ReplySender.
func NewReplySender(api *API, store *ConversationStore, threads *ThreadLoader, ledger *SentMailLedger, uploader *AttachmentUploader, notify Notifier) *ReplySender {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &ReplySender{
		api:      api,
		store:    store,
		threads:  threads,
		ledger:   ledger,
		uploader: uploader,
		notify:   notify,
	}
}

// SetDraft replaces the draft reply body.
func (r *ReplySender) SetDraft(body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draft = body
}

// Draft returns the current draft reply body.
func (r *ReplySender) Draft() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// Sending reports whether a send is in flight.
func (r *ReplySender) Sending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sending
}

// Send submits the draft and pending attachments as a reply to the active
// conversation. An empty draft (after trimming) or no active conversation is
// a no-op, not an error. A send already in flight makes further calls no-ops
// until it settles. On success the draft and attachment list are cleared and
// the thread, conversation list and sent-mail ledger are refreshed, in that
// order, so the new reply is visible before the list re-sorts. On failure the
// draft stays intact.
func (r *ReplySender) Send(ctx context.Context) error {
	selected := r.store.Selected()

	r.mu.Lock()
	body := strings.TrimSpace(r.draft)
	if body == "" || selected == nil || r.sending {
		r.mu.Unlock()
		return nil
	}
	r.sending = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.sending = false
		r.mu.Unlock()
	}()

	attachments := r.uploader.Pending()

	if _, err := r.api.Reply(ctx, selected.ID, body, attachments); err != nil {
		r.notify.Error(errorMessage(err, "Failed to send the reply"))
		return err
	}

	r.mu.Lock()
	r.draft = ""
	r.mu.Unlock()
	r.uploader.Clear()

	_ = r.threads.Load(ctx, selected.ID, true)
	_ = r.store.Refresh(ctx, true)
	_ = r.ledger.Refresh(ctx, true)
	return nil
}
