package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folioworks/mailroom/internal/crypto"
	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/models"
)

// ErrNotConfigured is returned when SMTP settings are missing, so no
// outbound mail can be sent.
var ErrNotConfigured = errors.New("email sending is not configured")

// Source builds a Sender for the current mailbox configuration. Handlers
// resolve the sender per request so settings changes take effect without a
// restart.
type Source interface {
	// Mailer returns a ready Sender together with the settings it was built
	// from (for the From address). Returns ErrNotConfigured when SMTP
	// settings are incomplete.
	Mailer(ctx context.Context) (Sender, *models.MailSettings, error)

	// CanSend reports whether outbound mail is configured.
	CanSend(ctx context.Context) bool
}

// SettingsSource builds SMTP senders from the settings stored in the database.
type SettingsSource struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor

	// AllowInsecure disables STARTTLS on built senders. Only for tests.
	AllowInsecure bool
}

// NewSettingsSource creates a SettingsSource.
func NewSettingsSource(pool *pgxpool.Pool, encryptor *crypto.Encryptor) *SettingsSource {
	return &SettingsSource{
		pool:      pool,
		encryptor: encryptor,
	}
}

// Mailer implements Source.
func (s *SettingsSource) Mailer(ctx context.Context) (Sender, *models.MailSettings, error) {
	settings, err := db.GetMailSettings(ctx, s.pool)
	if errors.Is(err, db.ErrMailSettingsNotFound) {
		return nil, nil, ErrNotConfigured
	}
	if err != nil {
		return nil, nil, err
	}

	if settings.SMTPServerHostname == "" || settings.FromAddress == "" || len(settings.EncryptedSMTPPassword) == 0 {
		return nil, nil, ErrNotConfigured
	}

	password, err := s.encryptor.Decrypt(settings.EncryptedSMTPPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	sender := NewSMTPSender(settings.SMTPServerHostname, settings.SMTPUsername, password)
	sender.AllowInsecure = s.AllowInsecure

	return sender, settings, nil
}

// CanSend implements Source.
func (s *SettingsSource) CanSend(ctx context.Context) bool {
	_, _, err := s.Mailer(ctx)
	return err == nil
}
