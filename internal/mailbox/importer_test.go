package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/models"
	"github.com/folioworks/mailroom/internal/testutil"
)

// configureTestMailbox points the stored settings at an in-memory IMAP server.
func configureTestMailbox(t *testing.T, pool *pgxpool.Pool, server *testutil.TestIMAPServer) {
	t.Helper()

	encryptor := testutil.GetTestEncryptor(t)
	imapPassword, err := encryptor.Encrypt(server.Password())
	require.NoError(t, err)
	smtpPassword, err := encryptor.Encrypt("unused")
	require.NoError(t, err)

	settings := &models.MailSettings{
		IMAPServerHostname:    server.Address,
		IMAPUsername:          server.Username(),
		EncryptedIMAPPassword: imapPassword,
		SMTPServerHostname:    "smtp.example.com:587",
		SMTPUsername:          "owner@example.com",
		EncryptedSMTPPassword: smtpPassword,
		FromAddress:           "owner@example.com",
	}
	require.NoError(t, db.SaveMailSettings(context.Background(), pool, settings))
}

func newTestImporter(t *testing.T, pool *pgxpool.Pool) *Importer {
	t.Helper()

	importer := NewImporter(pool, testutil.GetTestEncryptor(t))
	importer.AllowInsecure = true
	return importer
}

func TestImporter_NotConfigured(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	importer := newTestImporter(t, pool)
	_, err := importer.Import(context.Background(), false)
	assert.ErrorIs(t, err, ErrMailboxNotConfigured)
}

func TestImporter_ImportAndThreading(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	server := testutil.NewTestIMAPServer(t)
	defer server.Close()
	configureTestMailbox(t, pool, server)

	importer := newTestImporter(t, pool)
	ctx := context.Background()

	// Drain whatever the fresh mailbox already contains.
	_, err := importer.Import(ctx, false)
	require.NoError(t, err)
	baseline, err := db.ListConversations(ctx, pool)
	require.NoError(t, err)

	server.AddMessage(t, testutil.InboundMail{
		MessageID: "<inquiry-1@example.com>",
		From:      "Alice Example <alice@example.com>",
		To:        "owner@example.com",
		Subject:   "Project inquiry",
		Body:      "Hi, I saw your portfolio.",
		SentAt:    time.Now().Add(-time.Hour),
	})

	imported, err := importer.Import(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	conversations, err := db.ListConversations(ctx, pool)
	require.NoError(t, err)
	require.Len(t, conversations, len(baseline)+1)

	conv := findBySubject(conversations, "Project inquiry")
	require.NotNil(t, conv)
	assert.Equal(t, "alice@example.com", conv.SenderEmail)
	assert.False(t, conv.IsRead)
	assert.Contains(t, conv.Message, "I saw your portfolio")

	t.Run("incremental import is a no-op without new mail", func(t *testing.T) {
		imported, err := importer.Import(ctx, false)
		require.NoError(t, err)
		assert.Zero(t, imported)
	})

	t.Run("follow-up threads into the existing conversation", func(t *testing.T) {
		require.NoError(t, db.SetConversationRead(ctx, pool, conv.ID, true))

		server.AddMessage(t, testutil.InboundMail{
			MessageID:  "<inquiry-2@example.com>",
			InReplyTo:  "<inquiry-1@example.com>",
			References: []string{"<inquiry-1@example.com>"},
			From:       "Alice Example <alice@example.com>",
			To:         "owner@example.com",
			Subject:    "Re: Project inquiry",
			Body:       "Just checking in.",
		})

		imported, err := importer.Import(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, imported)

		// Threaded as a follow-up, not a new conversation.
		conversations, err := db.ListConversations(ctx, pool)
		require.NoError(t, err)
		assert.Len(t, conversations, len(baseline)+1)

		messages, err := db.GetThreadMessages(ctx, pool, conv.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, models.DirectionInbound, messages[1].Direction)
		assert.Contains(t, messages[1].Body, "Just checking in")

		stored, err := db.GetConversation(ctx, pool, conv.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsRead, "a follow-up flips the conversation back to unread")
	})

	t.Run("full sync deduplicates by message id", func(t *testing.T) {
		imported, err := importer.Import(ctx, true)
		require.NoError(t, err)
		assert.Zero(t, imported, "a full re-read stores nothing new")

		conversations, err := db.ListConversations(ctx, pool)
		require.NoError(t, err)
		assert.Len(t, conversations, len(baseline)+1)
	})
}

func findBySubject(conversations []*models.Conversation, subject string) *models.Conversation {
	for _, conv := range conversations {
		if conv.Subject == subject {
			return conv
		}
	}
	return nil
}
