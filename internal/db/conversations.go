package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/folioworks/mailroom/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConversationNotFound is returned when a requested conversation cannot be found.
var ErrConversationNotFound = errors.New("conversation not found")

// CreateConversation inserts a new conversation together with its inbound
// thread message in one transaction. If the conversation carries a Message-ID
// header that already exists (re-imported mail), nothing is inserted and
// created is false.
func CreateConversation(ctx context.Context, pool *pgxpool.Pool, conv *models.Conversation) (created bool, err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (sender_name, sender_email, subject, message, message_id_header, is_read, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id_header) WHERE message_id_header <> '' DO NOTHING
		RETURNING id
	`,
		conv.SenderName,
		conv.SenderEmail,
		conv.Subject,
		conv.Message,
		conv.MessageIDHeader,
		conv.IsRead,
		conversationStatusOrDefault(conv.Status),
		conv.ReceivedAt,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict on message_id_header: already imported.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create conversation: %w", err)
	}

	conv.ID = id

	_, err = tx.Exec(ctx, `
		INSERT INTO thread_messages (conversation_id, direction, body, message_id_header, sent_at, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, models.DirectionInbound, conv.Message, conv.MessageIDHeader, conv.ReceivedAt, models.DeliveryStatusSent)
	if err != nil {
		return false, fmt.Errorf("failed to create inbound thread message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit conversation: %w", err)
	}

	return true, nil
}

func conversationStatusOrDefault(status string) string {
	if status == "" {
		return models.ConversationStatusNew
	}
	return status
}

// ListConversations returns all conversations, newest first, with their
// outbound reply counts.
func ListConversations(ctx context.Context, pool *pgxpool.Pool) ([]*models.Conversation, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			c.id,
			c.sender_name,
			c.sender_email,
			c.subject,
			c.message,
			c.message_id_header,
			c.is_read,
			c.status,
			c.received_at,
			COUNT(m.id) FILTER (WHERE m.direction = 'outbound') AS reply_count
		FROM conversations c
		LEFT JOIN thread_messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.received_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.SenderName,
			&conv.SenderEmail,
			&conv.Subject,
			&conv.Message,
			&conv.MessageIDHeader,
			&conv.IsRead,
			&conv.Status,
			&conv.ReceivedAt,
			&conv.ReplyCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// GetConversation returns a single conversation by ID.
func GetConversation(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Conversation, error) {
	var conv models.Conversation

	err := pool.QueryRow(ctx, `
		SELECT
			c.id,
			c.sender_name,
			c.sender_email,
			c.subject,
			c.message,
			c.message_id_header,
			c.is_read,
			c.status,
			c.received_at,
			COUNT(m.id) FILTER (WHERE m.direction = 'outbound') AS reply_count
		FROM conversations c
		LEFT JOIN thread_messages m ON m.conversation_id = c.id
		WHERE c.id = $1
		GROUP BY c.id
	`, id).Scan(
		&conv.ID,
		&conv.SenderName,
		&conv.SenderEmail,
		&conv.Subject,
		&conv.Message,
		&conv.MessageIDHeader,
		&conv.IsRead,
		&conv.Status,
		&conv.ReceivedAt,
		&conv.ReplyCount,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// SetConversationRead sets the read flag on a conversation. The update is
// idempotent: marking an already-read conversation as read is not an error.
func SetConversationRead(ctx context.Context, pool *pgxpool.Pool, id string, isRead bool) error {
	tag, err := pool.Exec(ctx, `
		UPDATE conversations SET is_read = $2 WHERE id = $1
	`, id, isRead)
	if err != nil {
		return fmt.Errorf("failed to set read flag: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// SetConversationStatus updates the conversation status (e.g. to "replied").
func SetConversationStatus(ctx context.Context, pool *pgxpool.Pool, id, status string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE conversations SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// DeleteConversation removes a conversation. Thread messages and attachment
// rows are removed by cascade.
func DeleteConversation(ctx context.Context, pool *pgxpool.Pool, id string) error {
	tag, err := pool.Exec(ctx, `
		DELETE FROM conversations WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// FindConversationByMessageIDs returns the ID of the conversation whose
// Message-ID header matches any of the given references, or
// ErrConversationNotFound when none match. Used to thread imported replies.
func FindConversationByMessageIDs(ctx context.Context, pool *pgxpool.Pool, messageIDs []string) (string, error) {
	if len(messageIDs) == 0 {
		return "", ErrConversationNotFound
	}

	var id string
	err := pool.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE message_id_header = ANY($1)
		ORDER BY received_at
		LIMIT 1
	`, messageIDs).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrConversationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find conversation by message ID: %w", err)
	}

	return id, nil
}

// AppendInboundMessage adds a correspondent's follow-up to an existing
// conversation and flips the conversation back to unread. Follow-ups carrying
// a Message-ID header that was already stored (re-imported mail) are skipped
// and a nil message is returned.
func AppendInboundMessage(ctx context.Context, pool *pgxpool.Pool, conversationID, messageIDHeader, body string, sentAt time.Time) (*models.ThreadMessage, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var msg models.ThreadMessage
	err = tx.QueryRow(ctx, `
		INSERT INTO thread_messages (conversation_id, direction, body, message_id_header, sent_at, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id_header) WHERE message_id_header <> '' DO NOTHING
		RETURNING id, conversation_id, direction, body, sent_at, delivery_status
	`, conversationID, models.DirectionInbound, body, messageIDHeader, sentAt, models.DeliveryStatusSent).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Direction,
		&msg.Body,
		&msg.SentAt,
		&msg.DeliveryStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict on message_id_header: already imported.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append inbound message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations SET is_read = FALSE WHERE id = $1
	`, conversationID); err != nil {
		return nil, fmt.Errorf("failed to mark conversation unread: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit inbound message: %w", err)
	}

	return &msg, nil
}

// GetThreadMessages returns the conversation's messages in chronological order.
func GetThreadMessages(ctx context.Context, pool *pgxpool.Pool, conversationID string) ([]*models.ThreadMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, conversation_id, direction, body, sent_at, delivery_status
		FROM thread_messages
		WHERE conversation_id = $1
		ORDER BY sent_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ThreadMessage
	for rows.Next() {
		var msg models.ThreadMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Direction,
			&msg.Body,
			&msg.SentAt,
			&msg.DeliveryStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread messages: %w", err)
	}

	return messages, nil
}

// InsertReply appends an outbound thread message in pending delivery state.
func InsertReply(ctx context.Context, pool *pgxpool.Pool, conversationID, body string) (*models.ThreadMessage, error) {
	var msg models.ThreadMessage

	err := pool.QueryRow(ctx, `
		INSERT INTO thread_messages (conversation_id, direction, body, delivery_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, direction, body, sent_at, delivery_status
	`, conversationID, models.DirectionOutbound, body, models.DeliveryStatusPending).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Direction,
		&msg.Body,
		&msg.SentAt,
		&msg.DeliveryStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reply: %w", err)
	}

	return &msg, nil
}

// SetThreadMessageDeliveryStatus updates the delivery status of an outbound
// thread message. Direction and body are never mutated after creation.
func SetThreadMessageDeliveryStatus(ctx context.Context, pool *pgxpool.Pool, messageID, status string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE thread_messages SET delivery_status = $2
		WHERE id = $1 AND direction = 'outbound'
	`, messageID, status)
	if err != nil {
		return fmt.Errorf("failed to set delivery status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no outbound message with id %s", messageID)
	}

	return nil
}
