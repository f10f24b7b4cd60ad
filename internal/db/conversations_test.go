package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/mailroom/internal/models"
	"github.com/folioworks/mailroom/internal/testutil"
)

func newTestConversation(messageIDHeader string) *models.Conversation {
	return &models.Conversation{
		SenderName:      "Alice Example",
		SenderEmail:     "alice@example.com",
		Subject:         "Project inquiry",
		Message:         "Hi, I saw your portfolio.",
		MessageIDHeader: messageIDHeader,
		ReceivedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestCreateConversation(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	t.Run("creates conversation with inbound message", func(t *testing.T) {
		conv := newTestConversation("<msg-1@example.com>")
		created, err := CreateConversation(ctx, pool, conv)
		require.NoError(t, err)
		assert.True(t, created)
		require.NotEmpty(t, conv.ID)

		messages, err := GetThreadMessages(ctx, pool, conv.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, models.DirectionInbound, messages[0].Direction)
		assert.Equal(t, conv.Message, messages[0].Body)

		stored, err := GetConversation(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ConversationStatusNew, stored.Status)
		assert.False(t, stored.IsRead)
		assert.Equal(t, 0, stored.ReplyCount)
	})

	t.Run("deduplicates by message id header", func(t *testing.T) {
		conv := newTestConversation("<msg-dup@example.com>")
		created, err := CreateConversation(ctx, pool, conv)
		require.NoError(t, err)
		require.True(t, created)

		again := newTestConversation("<msg-dup@example.com>")
		created, err = CreateConversation(ctx, pool, again)
		require.NoError(t, err)
		assert.False(t, created, "re-importing the same mail must not duplicate")
	})

	t.Run("empty message id headers do not collide", func(t *testing.T) {
		first := newTestConversation("")
		created, err := CreateConversation(ctx, pool, first)
		require.NoError(t, err)
		require.True(t, created)

		second := newTestConversation("")
		created, err = CreateConversation(ctx, pool, second)
		require.NoError(t, err)
		assert.True(t, created, "contact-form submissions carry no message id")
	})
}

func TestSetConversationRead(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	conv := newTestConversation("<read-test@example.com>")
	_, err := CreateConversation(ctx, pool, conv)
	require.NoError(t, err)

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, SetConversationRead(ctx, pool, conv.ID, true))
		require.NoError(t, SetConversationRead(ctx, pool, conv.ID, true))

		stored, err := GetConversation(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsRead)
	})

	t.Run("can flip back to unread", func(t *testing.T) {
		require.NoError(t, SetConversationRead(ctx, pool, conv.ID, false))

		stored, err := GetConversation(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsRead)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		err := SetConversationRead(ctx, pool, "00000000-0000-0000-0000-000000000000", true)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestReplyLifecycle(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	conv := newTestConversation("<reply-test@example.com>")
	_, err := CreateConversation(ctx, pool, conv)
	require.NoError(t, err)

	reply, err := InsertReply(ctx, pool, conv.ID, "Thanks, happy to chat.")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionOutbound, reply.Direction)
	assert.Equal(t, models.DeliveryStatusPending, reply.DeliveryStatus)

	require.NoError(t, SetThreadMessageDeliveryStatus(ctx, pool, reply.ID, models.DeliveryStatusSent))
	require.NoError(t, SetConversationStatus(ctx, pool, conv.ID, models.ConversationStatusReplied))

	messages, err := GetThreadMessages(ctx, pool, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.DirectionInbound, messages[0].Direction, "chronological order, inbound first")
	assert.Equal(t, models.DeliveryStatusSent, messages[1].DeliveryStatus)

	stored, err := GetConversation(ctx, pool, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusReplied, stored.Status)
	assert.Equal(t, 1, stored.ReplyCount)
}

func TestSetThreadMessageDeliveryStatusIgnoresInbound(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	conv := newTestConversation("<inbound-guard@example.com>")
	_, err := CreateConversation(ctx, pool, conv)
	require.NoError(t, err)

	messages, err := GetThreadMessages(ctx, pool, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	err = SetThreadMessageDeliveryStatus(ctx, pool, messages[0].ID, models.DeliveryStatusFailed)
	assert.Error(t, err, "inbound messages have no delivery status to update")
}

func TestAppendInboundMessage(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	conv := newTestConversation("<followup-root@example.com>")
	_, err := CreateConversation(ctx, pool, conv)
	require.NoError(t, err)
	require.NoError(t, SetConversationRead(ctx, pool, conv.ID, true))

	msg, err := AppendInboundMessage(ctx, pool, conv.ID, "<followup-1@example.com>", "Any update on this?", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.DirectionInbound, msg.Direction)

	stored, err := GetConversation(ctx, pool, conv.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead, "a follow-up flips the conversation back to unread")

	messages, err := GetThreadMessages(ctx, pool, conv.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	dup, err := AppendInboundMessage(ctx, pool, conv.ID, "<followup-1@example.com>", "Any update on this?", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, dup, "a re-imported follow-up is skipped")

	messages, err = GetThreadMessages(ctx, pool, conv.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestFindConversationByMessageIDs(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	conv := newTestConversation("<thread-root@example.com>")
	_, err := CreateConversation(ctx, pool, conv)
	require.NoError(t, err)

	tests := []struct {
		name       string
		references []string
		wantID     string
		wantErr    error
	}{
		{
			name:       "matches by references chain",
			references: []string{"<unrelated@example.com>", "<thread-root@example.com>"},
			wantID:     conv.ID,
		},
		{
			name:       "no match",
			references: []string{"<unknown@example.com>"},
			wantErr:    ErrConversationNotFound,
		},
		{
			name:       "empty references",
			references: nil,
			wantErr:    ErrConversationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := FindConversationByMessageIDs(ctx, pool, tt.references)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	conv := newTestConversation("<delete-test@example.com>")
	_, err := CreateConversation(ctx, pool, conv)
	require.NoError(t, err)
	_, err = InsertReply(ctx, pool, conv.ID, "Reply before delete")
	require.NoError(t, err)

	require.NoError(t, DeleteConversation(ctx, pool, conv.ID))

	_, err = GetConversation(ctx, pool, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	messages, err := GetThreadMessages(ctx, pool, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	assert.ErrorIs(t, DeleteConversation(ctx, pool, conv.ID), ErrConversationNotFound)
}
