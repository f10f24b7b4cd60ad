package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/mailroom/internal/models"
	"github.com/folioworks/mailroom/internal/testutil"
)

func TestMailSettingsSingleton(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	encryptor := testutil.GetTestEncryptor(t)

	_, err := GetMailSettings(ctx, pool)
	assert.ErrorIs(t, err, ErrMailSettingsNotFound)

	imapPassword, err := encryptor.Encrypt("imap-secret")
	require.NoError(t, err)
	smtpPassword, err := encryptor.Encrypt("smtp-secret")
	require.NoError(t, err)

	settings := &models.MailSettings{
		IMAPServerHostname:    "imap.example.com:993",
		IMAPUsername:          "owner@example.com",
		EncryptedIMAPPassword: imapPassword,
		SMTPServerHostname:    "smtp.example.com:587",
		SMTPUsername:          "owner@example.com",
		EncryptedSMTPPassword: smtpPassword,
		FromAddress:           "owner@example.com",
	}
	require.NoError(t, SaveMailSettings(ctx, pool, settings))

	stored, err := GetMailSettings(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com:993", stored.IMAPServerHostname)

	decrypted, err := encryptor.Decrypt(stored.EncryptedIMAPPassword)
	require.NoError(t, err)
	assert.Equal(t, "imap-secret", decrypted)

	// Saving again overwrites, it never creates a second row.
	settings.SMTPServerHostname = "smtp2.example.com:587"
	require.NoError(t, SaveMailSettings(ctx, pool, settings))

	stored, err = GetMailSettings(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, "smtp2.example.com:587", stored.SMTPServerHostname)
}

func TestLastSeenUID(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	uid, err := GetLastSeenUID(ctx, pool, "INBOX")
	require.NoError(t, err)
	assert.Zero(t, uid, "an unknown folder starts at zero")

	require.NoError(t, SetLastSeenUID(ctx, pool, "INBOX", 42))
	uid, err = GetLastSeenUID(ctx, pool, "INBOX")
	require.NoError(t, err)
	assert.EqualValues(t, 42, uid)

	// Progress never moves backwards.
	require.NoError(t, SetLastSeenUID(ctx, pool, "INBOX", 7))
	uid, err = GetLastSeenUID(ctx, pool, "INBOX")
	require.NoError(t, err)
	assert.EqualValues(t, 42, uid)
}
