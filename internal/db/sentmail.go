package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/folioworks/mailroom/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSentMailNotFound is returned when a requested sent-mail record cannot be found.
var ErrSentMailNotFound = errors.New("sent-mail record not found")

// ErrSentMailNotRetryable is returned when retrying a record that is not in
// the failed state. Only failed records may return to pending.
var ErrSentMailNotRetryable = errors.New("sent-mail record is not in a retryable state")

// InsertSentMail creates a new outbound record in pending state.
func InsertSentMail(ctx context.Context, pool *pgxpool.Pool, record *models.SentMail) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO sent_mail (recipient, subject, body, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, record.To, record.Subject, record.Body, models.DeliveryStatusPending).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sent-mail record: %w", err)
	}

	record.Status = models.DeliveryStatusPending
	return nil
}

// ListSentMail returns all outbound records, newest first.
func ListSentMail(ctx context.Context, pool *pgxpool.Pool) ([]*models.SentMail, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, recipient, subject, body, status, error_message, provider_message_id, created_at
		FROM sent_mail
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent mail: %w", err)
	}
	defer rows.Close()

	var records []*models.SentMail
	for rows.Next() {
		var record models.SentMail
		if err := rows.Scan(
			&record.ID,
			&record.To,
			&record.Subject,
			&record.Body,
			&record.Status,
			&record.ErrorMessage,
			&record.ProviderMessageID,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sent-mail record: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sent mail: %w", err)
	}

	return records, nil
}

// GetSentMail returns a single outbound record by ID.
func GetSentMail(ctx context.Context, pool *pgxpool.Pool, id string) (*models.SentMail, error) {
	var record models.SentMail

	err := pool.QueryRow(ctx, `
		SELECT id, recipient, subject, body, status, error_message, provider_message_id, created_at
		FROM sent_mail
		WHERE id = $1
	`, id).Scan(
		&record.ID,
		&record.To,
		&record.Subject,
		&record.Body,
		&record.Status,
		&record.ErrorMessage,
		&record.ProviderMessageID,
		&record.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSentMailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sent-mail record: %w", err)
	}

	return &record, nil
}

// MarkSentMailSent transitions a record to the terminal sent state.
func MarkSentMailSent(ctx context.Context, pool *pgxpool.Pool, id, providerMessageID string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE sent_mail
		SET status = 'sent', error_message = '', provider_message_id = $2
		WHERE id = $1
	`, id, providerMessageID)
	if err != nil {
		return fmt.Errorf("failed to mark sent: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrSentMailNotFound
	}

	return nil
}

// MarkSentMailFailed transitions a record to the failed state, recording the
// delivery error for display.
func MarkSentMailFailed(ctx context.Context, pool *pgxpool.Pool, id, errorMessage string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE sent_mail
		SET status = 'failed', error_message = $2
		WHERE id = $1
	`, id, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrSentMailNotFound
	}

	return nil
}

// ResetSentMailForRetry moves a failed record back to pending. Records in any
// other state are left untouched and ErrSentMailNotRetryable is returned.
func ResetSentMailForRetry(ctx context.Context, pool *pgxpool.Pool, id string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE sent_mail
		SET status = 'pending', error_message = ''
		WHERE id = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reset for retry: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := GetSentMail(ctx, pool, id); errors.Is(getErr, ErrSentMailNotFound) {
			return ErrSentMailNotFound
		}
		return ErrSentMailNotRetryable
	}

	return nil
}

// DeleteSentMail removes an outbound record.
func DeleteSentMail(ctx context.Context, pool *pgxpool.Pool, id string) error {
	tag, err := pool.Exec(ctx, `
		DELETE FROM sent_mail WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sent-mail record: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrSentMailNotFound
	}

	return nil
}
