package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/folioworks/mailroom/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMailSettingsNotFound is returned when mailbox settings have not been configured yet.
var ErrMailSettingsNotFound = errors.New("mail settings not found")

// GetMailSettings returns the singleton mailbox configuration row.
func GetMailSettings(ctx context.Context, pool *pgxpool.Pool) (*models.MailSettings, error) {
	var settings models.MailSettings

	err := pool.QueryRow(ctx, `
		SELECT imap_server_hostname, imap_username, encrypted_imap_password,
		       smtp_server_hostname, smtp_username, encrypted_smtp_password,
		       from_address, updated_at
		FROM mail_settings
		WHERE id = TRUE
	`).Scan(
		&settings.IMAPServerHostname,
		&settings.IMAPUsername,
		&settings.EncryptedIMAPPassword,
		&settings.SMTPServerHostname,
		&settings.SMTPUsername,
		&settings.EncryptedSMTPPassword,
		&settings.FromAddress,
		&settings.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMailSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mail settings: %w", err)
	}

	return &settings, nil
}

// SaveMailSettings upserts the singleton mailbox configuration row.
func SaveMailSettings(ctx context.Context, pool *pgxpool.Pool, settings *models.MailSettings) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO mail_settings (
			id, imap_server_hostname, imap_username, encrypted_imap_password,
			smtp_server_hostname, smtp_username, encrypted_smtp_password,
			from_address, updated_at
		) VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			imap_server_hostname = EXCLUDED.imap_server_hostname,
			imap_username = EXCLUDED.imap_username,
			encrypted_imap_password = EXCLUDED.encrypted_imap_password,
			smtp_server_hostname = EXCLUDED.smtp_server_hostname,
			smtp_username = EXCLUDED.smtp_username,
			encrypted_smtp_password = EXCLUDED.encrypted_smtp_password,
			from_address = EXCLUDED.from_address,
			updated_at = now()
	`,
		settings.IMAPServerHostname,
		settings.IMAPUsername,
		settings.EncryptedIMAPPassword,
		settings.SMTPServerHostname,
		settings.SMTPUsername,
		settings.EncryptedSMTPPassword,
		settings.FromAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to save mail settings: %w", err)
	}

	return nil
}

// GetLastSeenUID returns the highest IMAP UID imported from a folder, or zero
// if the folder has never been imported.
func GetLastSeenUID(ctx context.Context, pool *pgxpool.Pool, folderName string) (int64, error) {
	var uid int64

	err := pool.QueryRow(ctx, `
		SELECT last_seen_uid FROM mailbox_sync_state WHERE folder_name = $1
	`, folderName).Scan(&uid)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last seen UID: %w", err)
	}

	return uid, nil
}

// SetLastSeenUID records the import progress for a folder.
func SetLastSeenUID(ctx context.Context, pool *pgxpool.Pool, folderName string, uid int64) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO mailbox_sync_state (folder_name, last_seen_uid, synced_at)
		VALUES ($1, $2, now())
		ON CONFLICT (folder_name) DO UPDATE SET
			last_seen_uid = GREATEST(mailbox_sync_state.last_seen_uid, EXCLUDED.last_seen_uid),
			synced_at = now()
	`, folderName, uid)
	if err != nil {
		return fmt.Errorf("failed to set last seen UID: %w", err)
	}

	return nil
}
