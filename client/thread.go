package client

import (
	"context"
	"log"
	"sync"

	"github.com/folioworks/mailroom/internal/models"
)

// ThreadLoader fetches and holds the ordered message sequence for one
// conversation. There is no cache across conversations; switching always
// triggers a fresh load and discards the previous messages.
type ThreadLoader struct {
	api    *API
	notify Notifier

	mu             sync.Mutex
	conversationID string
	messages       []*models.ThreadMessage
}

// NewThreadLoader creates a new ThreadLoader.
func NewThreadLoader(api *API, notify Notifier) *ThreadLoader {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &ThreadLoader{
		api:    api,
		notify: notify,
	}
}

// Load fetches the thread for a conversation and replaces the held message
// sequence. On failure the previous messages are kept; the error is surfaced
// unless silent.
func (l *ThreadLoader) Load(ctx context.Context, conversationID string, silent bool) error {
	thread, err := l.api.GetThread(ctx, conversationID)
	if err != nil {
		if silent {
			log.Printf("ThreadLoader: Silent load failed: %v", err)
		} else {
			l.notify.Error("Failed to load the conversation thread")
		}
		return err
	}

	l.mu.Lock()
	l.conversationID = conversationID
	l.messages = thread.Messages
	l.mu.Unlock()
	return nil
}

// Messages returns the currently loaded message sequence.
func (l *ThreadLoader) Messages() []*models.ThreadMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.messages
}

// ConversationID returns the conversation the loaded messages belong to.
func (l *ThreadLoader) ConversationID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conversationID
}

// Clear discards the loaded messages, for when the active conversation is
// deselected or deleted.
func (l *ThreadLoader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conversationID = ""
	l.messages = nil
}
