package mail

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
)

// SMTPSender delivers messages over SMTP with PLAIN authentication.
type SMTPSender struct {
	// Hostname is the server address, host:port.
	Hostname string
	Username string
	Password string
	// AllowInsecure skips STARTTLS. Only for tests against local servers.
	AllowInsecure bool
}

// NewSMTPSender creates an SMTP sender for the given server and credentials.
func NewSMTPSender(hostname, username, password string) *SMTPSender {
	return &SMTPSender{
		Hostname: hostname,
		Username: username,
		Password: password,
	}
}

// Name returns the provider name.
func (s *SMTPSender) Name() string {
	return "smtp"
}

// Send builds a MIME message with enmime and transmits it. The generated
// Message-ID header doubles as the provider message ID.
func (s *SMTPSender) Send(ctx context.Context, msg *OutgoingMessage) (string, error) {
	messageID := s.newMessageID(msg.From)

	builder := enmime.Builder().
		From(msg.FromName, msg.From).
		To("", msg.To).
		Subject(msg.Subject).
		Text([]byte(msg.Body)).
		Header("Message-ID", messageID)

	if msg.InReplyTo != "" {
		builder = builder.
			Header("In-Reply-To", msg.InReplyTo).
			Header("References", msg.InReplyTo)
	}

	for _, att := range msg.Attachments {
		builder = builder.AddAttachment(att.Content, att.Meta.MimeType, att.Meta.OriginalName)
	}

	part, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build MIME message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return "", fmt.Errorf("failed to encode MIME message: %w", err)
	}

	if err := s.transmit(ctx, msg.From, msg.To, buf.Bytes()); err != nil {
		return "", err
	}

	return messageID, nil
}

// transmit performs the SMTP conversation. STARTTLS is used unless
// AllowInsecure is set.
func (s *SMTPSender) transmit(ctx context.Context, from, to string, data []byte) error {
	var client *smtp.Client
	var err error

	if s.AllowInsecure {
		client, err = smtp.Dial(s.Hostname)
	} else {
		client, err = smtp.DialStartTLS(s.Hostname, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = client.Close() }()

	if s.Username != "" {
		auth := sasl.NewPlainClient("", s.Username, s.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	// The go-smtp client has no context plumbing; honor cancellation between
	// the dial and the payload at least.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := client.SendMail(from, []string{to}, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return client.Quit()
}

// newMessageID generates an RFC 5322 Message-ID scoped to the sender domain.
func (s *SMTPSender) newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
