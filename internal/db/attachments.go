package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/folioworks/mailroom/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAttachmentNotFound is returned when a requested attachment cannot be found.
var ErrAttachmentNotFound = errors.New("attachment not found")

// SaveAttachment stores an attachment blob with its metadata. The caller
// assigns the ID (a UUID) before calling; the attachment starts out unowned
// and is linked to a message or sent-mail record at send time.
func SaveAttachment(ctx context.Context, pool *pgxpool.Pool, att *models.Attachment, content []byte) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO attachments (id, original_name, mime_type, size_bytes, content)
		VALUES ($1, $2, $3, $4, $5)
	`, att.ID, att.OriginalName, att.MimeType, att.Size, content)
	if err != nil {
		return fmt.Errorf("failed to save attachment: %w", err)
	}

	return nil
}

// GetAttachment returns an attachment's metadata and content by ID.
func GetAttachment(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Attachment, []byte, error) {
	var att models.Attachment
	var content []byte

	err := pool.QueryRow(ctx, `
		SELECT id, original_name, mime_type, size_bytes, content
		FROM attachments
		WHERE id = $1
	`, id).Scan(&att.ID, &att.OriginalName, &att.MimeType, &att.Size, &content)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return &att, content, nil
}

// LinkAttachmentsToThreadMessage assigns uploaded attachments to an outbound
// thread message so they share its lifecycle.
func LinkAttachmentsToThreadMessage(ctx context.Context, pool *pgxpool.Pool, attachmentIDs []string, messageID string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	_, err := pool.Exec(ctx, `
		UPDATE attachments SET thread_message_id = $2
		WHERE id = ANY($1)
	`, attachmentIDs, messageID)
	if err != nil {
		return fmt.Errorf("failed to link attachments to thread message: %w", err)
	}

	return nil
}

// LinkAttachmentsToSentMail assigns uploaded attachments to a sent-mail record.
func LinkAttachmentsToSentMail(ctx context.Context, pool *pgxpool.Pool, attachmentIDs []string, sentMailID string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	_, err := pool.Exec(ctx, `
		UPDATE attachments SET sent_mail_id = $2
		WHERE id = ANY($1)
	`, attachmentIDs, sentMailID)
	if err != nil {
		return fmt.Errorf("failed to link attachments to sent mail: %w", err)
	}

	return nil
}

// LinkAttachmentsToConversation assigns imported attachments to a conversation.
func LinkAttachmentsToConversation(ctx context.Context, pool *pgxpool.Pool, attachmentIDs []string, conversationID string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	_, err := pool.Exec(ctx, `
		UPDATE attachments SET conversation_id = $2
		WHERE id = ANY($1)
	`, attachmentIDs, conversationID)
	if err != nil {
		return fmt.Errorf("failed to link attachments to conversation: %w", err)
	}

	return nil
}

// GetAttachmentsForConversation returns metadata for a conversation's
// directly-owned attachments (those that arrived with the inbound message).
func GetAttachmentsForConversation(ctx context.Context, pool *pgxpool.Pool, conversationID string) ([]models.Attachment, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, original_name, mime_type, size_bytes
		FROM attachments
		WHERE conversation_id = $1
		ORDER BY created_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachmentRows(rows)
}

// GetAttachmentsForSentMail returns metadata for a sent-mail record's
// attachments, so a retry re-delivers the same files.
func GetAttachmentsForSentMail(ctx context.Context, pool *pgxpool.Pool, sentMailID string) ([]models.Attachment, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, original_name, mime_type, size_bytes
		FROM attachments
		WHERE sent_mail_id = $1
		ORDER BY created_at
	`, sentMailID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sent-mail attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachmentRows(rows)
}

// GetAttachmentsForThreadMessages returns attachment metadata for multiple
// thread messages in a single query, keyed by message ID.
func GetAttachmentsForThreadMessages(ctx context.Context, pool *pgxpool.Pool, messageIDs []string) (map[string][]models.Attachment, error) {
	result := make(map[string][]models.Attachment)
	if len(messageIDs) == 0 {
		return result, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT id, thread_message_id, original_name, mime_type, size_bytes
		FROM attachments
		WHERE thread_message_id = ANY($1)
		ORDER BY created_at
	`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread message attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var att models.Attachment
		var messageID string
		if err := rows.Scan(&att.ID, &messageID, &att.OriginalName, &att.MimeType, &att.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		result[messageID] = append(result[messageID], att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return result, nil
}

func scanAttachmentRows(rows pgx.Rows) ([]models.Attachment, error) {
	var attachments []models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(&att.ID, &att.OriginalName, &att.MimeType, &att.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}
