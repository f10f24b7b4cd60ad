// Package mail handles outbound email delivery for replies and standalone
// composes. Delivery backends implement the Sender interface so SMTP can be
// swapped for an API-based provider without touching the handlers.
package mail

import (
	"context"
	"fmt"
	"log"

	"github.com/folioworks/mailroom/internal/models"
)

// OutgoingMessage is a fully-composed email ready for delivery.
type OutgoingMessage struct {
	From        string
	FromName    string
	To          string
	Subject     string
	Body        string
	InReplyTo   string
	Attachments []AttachmentContent
}

// AttachmentContent pairs attachment metadata with its raw bytes.
type AttachmentContent struct {
	Meta    models.Attachment
	Content []byte
}

// Sender delivers composed messages. Send returns the provider-assigned
// message ID on success.
type Sender interface {
	Send(ctx context.Context, msg *OutgoingMessage) (providerMessageID string, err error)
	Name() string
}

// StdoutSender logs messages instead of delivering them. Used in development
// when no SMTP settings are configured.
type StdoutSender struct{}

// Send logs the message and reports success.
func (s *StdoutSender) Send(_ context.Context, msg *OutgoingMessage) (string, error) {
	log.Printf("StdoutSender: would send %q to %s (%d attachments)", msg.Subject, msg.To, len(msg.Attachments))
	return fmt.Sprintf("stdout-%s", msg.To), nil
}

// Name returns the provider name.
func (s *StdoutSender) Name() string {
	return "stdout"
}
