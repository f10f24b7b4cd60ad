package mailbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
)

// ParsedMessage is one inbound email decoded from the mailbox, ready to be
// turned into a conversation or an inbound thread message.
type ParsedMessage struct {
	UID         uint32
	MessageID   string
	References  []string
	FromName    string
	FromAddress string
	Subject     string
	Date        time.Time
	Text        string
	Attachments []ParsedAttachment
}

// ParsedAttachment is a decoded attachment from an inbound email.
type ParsedAttachment struct {
	OriginalName string
	MimeType     string
	Content      []byte
}

// ParseMessage converts a fetched IMAP message into a ParsedMessage.
func ParseMessage(imapMsg *imap.Message) (*ParsedMessage, error) {
	if imapMsg == nil {
		return nil, fmt.Errorf("imap message is nil")
	}

	parsed := &ParsedMessage{
		UID: imapMsg.Uid,
	}

	if env := imapMsg.Envelope; env != nil {
		parsed.MessageID = env.MessageId
		parsed.Subject = env.Subject
		if !env.Date.IsZero() {
			parsed.Date = env.Date
		}
		if len(env.From) > 0 && env.From[0] != nil {
			parsed.FromName = env.From[0].PersonalName
			parsed.FromAddress = formatAddress(env.From[0])
		}
		if env.InReplyTo != "" {
			parsed.References = append(parsed.References, normalizeMessageID(env.InReplyTo))
		}
	}

	if parsed.Date.IsZero() {
		parsed.Date = time.Now()
	}

	section := &imap.BodySectionName{}
	if bodyReader := imapMsg.GetBody(section); bodyReader != nil {
		if err := parseBody(bodyReader, parsed); err != nil {
			// Keep the envelope data even when the body is unparseable.
			return parsed, nil
		}
	}

	return parsed, nil
}

// parseBody decodes the MIME body with enmime and collects text, the full
// References chain, and attachments.
func parseBody(bodyReader io.Reader, parsed *ParsedMessage) error {
	envelope, err := enmime.ReadEnvelope(bodyReader)
	if err != nil {
		return fmt.Errorf("failed to parse email body: %w", err)
	}

	parsed.Text = envelope.Text
	if parsed.Text == "" && envelope.HTML != "" {
		parsed.Text = envelope.HTML
	}

	for _, ref := range strings.Fields(envelope.GetHeader("References")) {
		parsed.References = appendUniqueReference(parsed.References, normalizeMessageID(ref))
	}
	if inReplyTo := envelope.GetHeader("In-Reply-To"); inReplyTo != "" {
		parsed.References = appendUniqueReference(parsed.References, normalizeMessageID(inReplyTo))
	}

	for _, part := range envelope.Attachments {
		parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
			OriginalName: part.FileName,
			MimeType:     part.ContentType,
			Content:      part.Content,
		})
	}

	return nil
}

func appendUniqueReference(refs []string, ref string) []string {
	if ref == "" {
		return refs
	}
	for _, existing := range refs {
		if existing == ref {
			return refs
		}
	}
	return append(refs, ref)
}

// normalizeMessageID strips whitespace around a Message-ID token. Angle
// brackets are preserved: stored headers keep them too, so lookups match.
func normalizeMessageID(id string) string {
	return strings.TrimSpace(id)
}

// formatAddress formats an IMAP address to a plain addr-spec string.
func formatAddress(address *imap.Address) string {
	if address == nil || (address.MailboxName == "" && address.HostName == "") {
		return ""
	}
	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}

// StripSubjectPrefix removes reply/forward prefixes ("Re:", "Fwd:") so the
// conversation keeps the original subject.
func StripSubjectPrefix(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		switch {
		case strings.HasPrefix(lower, "re:"):
			s = strings.TrimSpace(s[3:])
		case strings.HasPrefix(lower, "fwd:"):
			s = strings.TrimSpace(s[4:])
		case strings.HasPrefix(lower, "fw:"):
			s = strings.TrimSpace(s[3:])
		default:
			return s
		}
	}
}
