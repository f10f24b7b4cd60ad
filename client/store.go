package client

import (
	"context"
	"log"
	"sync"

	"github.com/folioworks/mailroom/internal/models"
)

// ConversationStore holds the authoritative client-side copy of all
// conversations and the currently selected one. State is in-memory only and
// rebuilt from the backend on each load.
type ConversationStore struct {
	api     *API
	threads *ThreadLoader
	notify  Notifier

	mu            sync.Mutex
	conversations []*models.Conversation
	selected      *models.Conversation
}

// NewConversationStore creates a new ConversationStore.
func NewConversationStore(api *API, threads *ThreadLoader, notify Notifier) *ConversationStore {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &ConversationStore{
		api:     api,
		threads: threads,
		notify:  notify,
	}
}

// Refresh fetches the full conversation list. On success it replaces the list
// and re-synchronizes the active selection by id, so a selected conversation
// stays selected with updated fields. On failure the previous state is kept;
// silent refreshes swallow the error so background polls never interrupt the
// user.
func (s *ConversationStore) Refresh(ctx context.Context, silent bool) error {
	conversations, err := s.api.ListConversations(ctx)
	if err != nil {
		if silent {
			log.Printf("ConversationStore: Silent refresh failed: %v", err)
		} else {
			s.notify.Error("Failed to load conversations")
		}
		return err
	}

	s.mu.Lock()
	s.conversations = conversations
	if s.selected != nil {
		s.selected = findConversation(conversations, s.selected.ID)
	}
	s.mu.Unlock()
	return nil
}

// Select sets the active conversation, loads its thread, and marks it read if
// it is unread. Mark-as-read failures are logged but not surfaced.
func (s *ConversationStore) Select(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	conv := findConversation(s.conversations, conversationID)
	s.selected = conv
	s.mu.Unlock()
	if conv == nil {
		s.threads.Clear()
		return nil
	}

	if err := s.threads.Load(ctx, conversationID, false); err != nil {
		return err
	}

	if !conv.IsRead {
		if err := s.api.MarkRead(ctx, conversationID, true); err != nil {
			// Best-effort: the conversation stays visibly unread until the
			// next successful attempt.
			log.Printf("ConversationStore: Failed to mark conversation read: %v", err)
		} else {
			s.mu.Lock()
			conv.IsRead = true
			s.mu.Unlock()
		}
	}
	return nil
}

// Delete removes a conversation. On success it is removed from the list, and
// the selection and thread view are cleared if it was the active one. On
// failure state is left unchanged.
func (s *ConversationStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.api.DeleteConversation(ctx, conversationID); err != nil {
		s.notify.Error("Failed to delete the conversation")
		return err
	}

	s.mu.Lock()
	kept := s.conversations[:0]
	for _, conv := range s.conversations {
		if conv.ID != conversationID {
			kept = append(kept, conv)
		}
	}
	s.conversations = kept
	wasSelected := s.selected != nil && s.selected.ID == conversationID
	if wasSelected {
		s.selected = nil
	}
	s.mu.Unlock()

	if wasSelected {
		s.threads.Clear()
	}
	return nil
}

// Conversations returns the current conversation list.
func (s *ConversationStore) Conversations() []*models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations
}

// Selected returns the active conversation, or nil when none is selected.
func (s *ConversationStore) Selected() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func findConversation(conversations []*models.Conversation, id string) *models.Conversation {
	for _, conv := range conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}
