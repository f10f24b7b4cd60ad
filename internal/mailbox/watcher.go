package mailbox

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/folioworks/mailroom/internal/websocket"
)

// watcherRetrySleep is the backoff after an error before the watch loop
// reconnects.
const watcherRetrySleep = 10 * time.Second

// idleFallbackPoll is the polling interval used when the server lacks IDLE.
const idleFallbackPoll = 30 * time.Second

// Watcher keeps a server-side live-sync loop over the inbox. It has two
// states, idle and watching; Start and Stop move between them. While
// watching, an IMAP IDLE loop triggers incremental imports and pushes a
// notification to connected dashboard clients when new mail lands.
type Watcher struct {
	importer *Importer
	hub      *websocket.Hub

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	watching bool
}

// NewWatcher creates a Watcher over the given importer and hub.
func NewWatcher(importer *Importer, hub *websocket.Hub) *Watcher {
	return &Watcher{
		importer: importer,
		hub:      hub,
	}
}

// Watching reports whether the watch loop is running.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Start begins watching. Starting an already-watching Watcher is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.watching = true

	go w.run(ctx, w.done)
}

// Stop ends watching, cancels any in-flight IDLE wait, and waits for the
// watch loop to exit, so no import runs after Stop returns. Stopping an idle
// Watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return
	}

	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.watching = false
	w.mu.Unlock()

	cancel()
	<-done
}

// run is the watch loop. It reconnects with a fixed backoff until the
// context is canceled.
func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client, _, err := w.importer.connect(ctx)
		if err != nil {
			log.Printf("Watcher: failed to connect: %v", err)
			if !sleepOrDone(ctx, watcherRetrySleep) {
				return
			}
			continue
		}

		w.runIdleLoop(ctx, client)
		_ = client.Logout()

		if !sleepOrDone(ctx, watcherRetrySleep) {
			return
		}
	}
}

// runIdleLoop runs the IDLE command on an established connection and imports
// on every mailbox update until the connection drops or the context ends.
func (w *Watcher) runIdleLoop(ctx context.Context, client *imapclient.Client) {
	idleClient := idle.NewClient(client)

	updates := make(chan imapclient.Update, 10)
	client.Updates = updates

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, idleFallbackPoll)
	}()

	for {
		select {
		case <-ctx.Done():
			close(stop)
			<-done
			return
		case err := <-done:
			if err != nil {
				log.Printf("Watcher: idle loop ended with error: %v", err)
			}
			return
		case update := <-updates:
			if update == nil {
				continue
			}
			w.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate reacts to a mailbox update by importing incrementally and
// notifying dashboard clients if anything arrived.
func (w *Watcher) handleUpdate(ctx context.Context, update imapclient.Update) {
	mboxUpdate, ok := update.(*imapclient.MailboxUpdate)
	if !ok || mboxUpdate.Mailbox == nil || mboxUpdate.Mailbox.Messages == 0 {
		return
	}

	imported, err := w.importer.Import(ctx, false)
	if err != nil {
		log.Printf("Watcher: import after mailbox update failed: %v", err)
		return
	}

	if imported > 0 {
		w.notifyNewMail(imported)
	}
}

// notifyNewMail broadcasts a new-mail event to the dashboard.
func (w *Watcher) notifyNewMail(imported int) {
	msg := struct {
		Type     string `json:"type"`
		Imported int    `json:"imported"`
	}{
		Type:     "new_messages",
		Imported: imported,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Watcher: failed to marshal notification: %v", err)
		return
	}
	w.hub.Broadcast(payload)
}

// sleepOrDone sleeps for d or returns false early when the context ends.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
