package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folioworks/mailroom/internal/crypto"
	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/models"
)

// inboxFolder is the only folder the importer reads. Contact mail for the
// portfolio owner lands in INBOX; other folders are out of scope.
const inboxFolder = "INBOX"

// ErrMailboxNotConfigured is returned when IMAP settings are missing.
var ErrMailboxNotConfigured = errors.New("mailbox is not configured")

// Importer pulls inbound emails from the configured IMAP mailbox and turns
// them into conversations. Replies from correspondents are threaded into
// their existing conversations via Message-ID references.
type Importer struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor

	// AllowInsecure disables TLS for the IMAP connection. Only for tests.
	AllowInsecure bool
}

// NewImporter creates an Importer.
func NewImporter(pool *pgxpool.Pool, encryptor *crypto.Encryptor) *Importer {
	return &Importer{
		pool:      pool,
		encryptor: encryptor,
	}
}

// connect loads settings, decrypts the IMAP password, and returns a logged-in
// client with INBOX selected.
func (im *Importer) connect(ctx context.Context) (*imapclient.Client, *imap.MailboxStatus, error) {
	settings, err := db.GetMailSettings(ctx, im.pool)
	if errors.Is(err, db.ErrMailSettingsNotFound) {
		return nil, nil, ErrMailboxNotConfigured
	}
	if err != nil {
		return nil, nil, err
	}

	if settings.IMAPServerHostname == "" || len(settings.EncryptedIMAPPassword) == 0 {
		return nil, nil, ErrMailboxNotConfigured
	}

	password, err := im.encryptor.Decrypt(settings.EncryptedIMAPPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}

	client, err := Login(settings.IMAPServerHostname, settings.IMAPUsername, password, !im.AllowInsecure)
	if err != nil {
		return nil, nil, err
	}

	mbox, err := client.Select(inboxFolder, true)
	if err != nil {
		_ = client.Logout()
		return nil, nil, fmt.Errorf("failed to select %s: %w", inboxFolder, err)
	}

	return client, mbox, nil
}

// Import fetches inbound mail and stores it. With fullSync the whole mailbox
// is re-read (deduplicated by Message-ID); otherwise only messages past the
// last imported UID are fetched. Returns the number of newly stored messages.
func (im *Importer) Import(ctx context.Context, fullSync bool) (int, error) {
	client, mbox, err := im.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = client.Logout() }()

	if mbox.Messages == 0 {
		return 0, nil
	}

	var fromUID uint32 = 1
	if !fullSync {
		lastSeen, err := db.GetLastSeenUID(ctx, im.pool, inboxFolder)
		if err != nil {
			return 0, err
		}
		fromUID = uint32(lastSeen) + 1
	}

	messages, err := fetchFullMessages(client, fromUID)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	// Ask the server for its thread grouping so a full sync reconstructs
	// conversations even when reply chains arrive out of order. Servers
	// without the THREAD extension fall back to per-message matching.
	uidToRoot := map[uint32]uint32{}
	if fullSync {
		if roots, err := threadRootsByUID(client); err != nil {
			log.Printf("Importer: THREAD command unavailable, falling back to header matching: %v", err)
		} else {
			uidToRoot = roots
		}
	}

	imported := 0
	var maxUID uint32
	rootConversations := map[uint32]string{} // thread root UID -> conversation ID

	for _, imapMsg := range messages {
		if imapMsg.Uid > maxUID {
			maxUID = imapMsg.Uid
		}

		parsed, err := ParseMessage(imapMsg)
		if err != nil {
			log.Printf("Importer: failed to parse message UID %d: %v", imapMsg.Uid, err)
			continue
		}

		stored, conversationID, err := im.storeMessage(ctx, parsed, uidToRoot, rootConversations)
		if err != nil {
			log.Printf("Importer: failed to store message UID %d: %v", imapMsg.Uid, err)
			continue
		}
		if root, ok := uidToRoot[parsed.UID]; ok && conversationID != "" {
			rootConversations[root] = conversationID
		}
		if stored {
			imported++
		}
	}

	if maxUID > 0 {
		if err := db.SetLastSeenUID(ctx, im.pool, inboxFolder, int64(maxUID)); err != nil {
			return imported, err
		}
	}

	return imported, nil
}

// storeMessage threads the parsed message into an existing conversation or
// creates a new one. Returns whether anything new was stored and the
// conversation the message belongs to.
func (im *Importer) storeMessage(
	ctx context.Context,
	parsed *ParsedMessage,
	uidToRoot map[uint32]uint32,
	rootConversations map[uint32]string,
) (bool, string, error) {
	// Prefer the server's thread grouping, then fall back to References.
	conversationID := ""
	if root, ok := uidToRoot[parsed.UID]; ok {
		if id, ok := rootConversations[root]; ok {
			conversationID = id
		}
	}
	if conversationID == "" && len(parsed.References) > 0 {
		id, err := db.FindConversationByMessageIDs(ctx, im.pool, parsed.References)
		if err == nil {
			conversationID = id
		} else if !errors.Is(err, db.ErrConversationNotFound) {
			return false, "", err
		}
	}

	if conversationID != "" {
		msg, err := db.AppendInboundMessage(ctx, im.pool, conversationID, parsed.MessageID, parsed.Text, parsed.Date)
		if err != nil {
			return false, "", err
		}
		if msg == nil {
			// Follow-up already imported in a previous run.
			return false, conversationID, nil
		}
		if err := im.storeAttachments(ctx, parsed.Attachments, func(ids []string) error {
			return db.LinkAttachmentsToThreadMessage(ctx, im.pool, ids, msg.ID)
		}); err != nil {
			return false, "", err
		}
		return true, conversationID, nil
	}

	conv := &models.Conversation{
		SenderName:      parsed.FromName,
		SenderEmail:     parsed.FromAddress,
		Subject:         StripSubjectPrefix(parsed.Subject),
		Message:         parsed.Text,
		MessageIDHeader: parsed.MessageID,
		ReceivedAt:      parsed.Date,
	}

	created, err := db.CreateConversation(ctx, im.pool, conv)
	if err != nil {
		return false, "", err
	}
	if !created {
		// Already imported in a previous run.
		return false, "", nil
	}

	if err := im.storeAttachments(ctx, parsed.Attachments, func(ids []string) error {
		return db.LinkAttachmentsToConversation(ctx, im.pool, ids, conv.ID)
	}); err != nil {
		return false, "", err
	}

	return true, conv.ID, nil
}

// storeAttachments persists parsed attachments and links them to their owner.
func (im *Importer) storeAttachments(ctx context.Context, attachments []ParsedAttachment, link func(ids []string) error) error {
	if len(attachments) == 0 {
		return nil
	}

	ids := make([]string, 0, len(attachments))
	for _, att := range attachments {
		meta := &models.Attachment{
			ID:           uuid.NewString(),
			OriginalName: att.OriginalName,
			MimeType:     att.MimeType,
			Size:         int64(len(att.Content)),
		}
		if err := db.SaveAttachment(ctx, im.pool, meta, att.Content); err != nil {
			return err
		}
		ids = append(ids, meta.ID)
	}

	return link(ids)
}

// fetchFullMessages fetches envelope, flags, UID, and raw body for every
// message with UID >= fromUID.
func fetchFullMessages(c *imapclient.Client, fromUID uint32) ([]*imap.Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(fromUID, 0) // 0 means "*"

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 32)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var result []*imap.Message
	for msg := range messages {
		// A UID range of n:* always matches the highest-UID message even
		// when n is past it; skip anything below the requested floor.
		if msg.Uid < fromUID {
			continue
		}
		result = append(result, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return result, nil
}

// threadRootsByUID runs UID THREAD with the REFERENCES algorithm and maps
// every message UID to the UID of its thread root.
func threadRootsByUID(c *imapclient.Client) (map[uint32]uint32, error) {
	threadClient := sortthread.NewThreadClient(c)

	threads, err := threadClient.UidThread(sortthread.References, imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("THREAD command returned error: %w", err)
	}

	roots := make(map[uint32]uint32)

	var walk func(t *sortthread.Thread, root uint32)
	walk = func(t *sortthread.Thread, root uint32) {
		if t == nil {
			return
		}
		if t.Id != 0 {
			if root == 0 {
				root = t.Id
			}
			roots[t.Id] = root
		}
		for _, child := range t.Children {
			walk(child, root)
		}
	}

	for _, thread := range threads {
		walk(thread, 0)
	}

	return roots, nil
}
