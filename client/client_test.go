package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/folioworks/mailroom/internal/models"
)

// testNotifier records surfaced errors and warnings.
type testNotifier struct {
	mu       sync.Mutex
	errors   []string
	warnings []string
}

func (n *testNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *testNotifier) Warning(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, message)
}

func (n *testNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

func (n *testNotifier) Warnings() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.warnings...)
}

// fakeBackend is an in-memory stand-in for the mailroom API, with request
// counters so tests can assert how many calls each endpoint received.
type fakeBackend struct {
	mu            sync.Mutex
	conversations []*models.Conversation
	sent          []*models.SentMail

	listCalls     int
	threadCalls   int
	markReadCalls int
	replyCalls    int
	sentListCalls int
	uploadedNames []string

	replyStatus  int
	replyStarted chan struct{}
	replyRelease chan struct{}

	server *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{replyStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /contact", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.listCalls++
		conversations := append([]*models.Conversation(nil), b.conversations...)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(conversations)
	})
	mux.HandleFunc("GET /contact/{id}/thread", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.threadCalls++
		conv := b.findConversation(r.PathValue("id"))
		b.mu.Unlock()
		if conv == nil {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Conversation not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(Thread{
			Conversation: conv,
			Messages: []*models.ThreadMessage{
				{ID: "m1", ConversationID: conv.ID, Direction: models.DirectionInbound, Body: conv.Message},
			},
		})
	})
	mux.HandleFunc("PUT /contact/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.markReadCalls++
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /contact/{id}/reply", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.replyCalls++
		status := b.replyStatus
		started := b.replyStarted
		release := b.replyRelease
		b.mu.Unlock()

		if started != nil {
			started <- struct{}{}
		}
		if release != nil {
			<-release
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Failed to send reply: connection refused"})
			return
		}
		_ = json.NewEncoder(w).Encode(models.ThreadMessage{
			ID:             "reply-1",
			ConversationID: r.PathValue("id"),
			Direction:      models.DirectionOutbound,
			DeliveryStatus: models.DeliveryStatusSent,
		})
	})
	mux.HandleFunc("DELETE /contact/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		kept := b.conversations[:0]
		for _, conv := range b.conversations {
			if conv.ID != r.PathValue("id") {
				kept = append(kept, conv)
			}
		}
		b.conversations = kept
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /contact/sent", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.sentListCalls++
		records := append([]*models.SentMail(nil), b.sent...)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(records)
	})
	mux.HandleFunc("DELETE /contact/sent/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		kept := b.sent[:0]
		for _, record := range b.sent {
			if record.ID != r.PathValue("id") {
				kept = append(kept, record)
			}
		}
		b.sent = kept
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /contact/sent/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, record := range b.sent {
			if record.ID == r.PathValue("id") {
				if record.Status != models.DeliveryStatusFailed {
					w.WriteHeader(http.StatusConflict)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "Only failed emails can be retried"})
					return
				}
				record.Status = models.DeliveryStatusSent
				record.ErrorMessage = ""
				_ = json.NewEncoder(w).Encode(record)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Sent-mail record not found"})
	})

	mux.HandleFunc("POST /contact/upload-attachment", func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Expected multipart form data"})
			return
		}
		result := UploadResult{}
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			content, _ := io.ReadAll(part)
			b.mu.Lock()
			b.uploadedNames = append(b.uploadedNames, part.FileName())
			n := len(b.uploadedNames)
			b.mu.Unlock()
			result.Attachments = append(result.Attachments, models.Attachment{
				ID:           fmt.Sprintf("att-%d", n),
				URL:          fmt.Sprintf("/contact/attachments/att-%d", n),
				OriginalName: part.FileName(),
				MimeType:     "application/octet-stream",
				Size:         int64(len(content)),
			})
		}
		_ = json.NewEncoder(w).Encode(result)
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) findConversation(id string) *models.Conversation {
	for _, conv := range b.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

func (b *fakeBackend) api() *API {
	return NewAPI(b.server.URL, "test-token")
}

func (b *fakeBackend) counts() (list, thread, markRead, reply, sentList int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls, b.threadCalls, b.markReadCalls, b.replyCalls, b.sentListCalls
}

func testConversation(id string, isRead bool) *models.Conversation {
	return &models.Conversation{
		ID:          id,
		SenderName:  "Alice Example",
		SenderEmail: "alice@example.com",
		Subject:     "Hello",
		Message:     "Original message",
		IsRead:      isRead,
		Status:      models.ConversationStatusNew,
		ReceivedAt:  time.Now().UTC(),
	}
}
