package models

import "time"

// Conversation statuses.
const (
	ConversationStatusNew     = "new"
	ConversationStatusReplied = "replied"
)

// Message directions within a conversation thread.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Delivery statuses for outbound mail (replies and standalone sends).
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
)

// Conversation represents one external correspondent's contact thread:
// the original inbound message plus any admin replies.
type Conversation struct {
	ID              string       `json:"id"`
	SenderName      string       `json:"senderName"`
	SenderEmail     string       `json:"senderEmail"`
	Subject         string       `json:"subject"`
	Message         string       `json:"message"`
	MessageIDHeader string       `json:"-"`
	IsRead          bool         `json:"isRead"`
	Status          string       `json:"status"`
	ReplyCount      int          `json:"replyCount"`
	ReceivedAt      time.Time    `json:"receivedAt"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// ThreadMessage is one exchange unit within a conversation: either the
// inbound message or an admin reply. Direction is immutable once created;
// only the delivery status of outbound messages may change afterwards.
type ThreadMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Direction      string       `json:"direction"`
	Body           string       `json:"body"`
	SentAt         time.Time    `json:"sentAt"`
	DeliveryStatus string       `json:"deliveryStatus"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// SentMail is a standalone outbound send tracked independently of any
// conversation. Status progresses pending -> {sent | failed}; a failed
// record returns to pending only through an explicit retry.
type SentMail struct {
	ID                string    `json:"id"`
	To                string    `json:"to"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Status            string    `json:"status"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Attachment describes an uploaded file referenced by a message or sent-mail
// record. The URL is the stable key for an attachment within a compose session.
type Attachment struct {
	ID           string `json:"id,omitempty"`
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// MailSettings holds the admin mailbox configuration with encrypted
// credentials. A single row exists per deployment.
type MailSettings struct {
	IMAPServerHostname    string    `json:"imap_server_hostname"`
	IMAPUsername          string    `json:"imap_username"`
	EncryptedIMAPPassword []byte    `json:"-"`
	SMTPServerHostname    string    `json:"smtp_server_hostname"`
	SMTPUsername          string    `json:"smtp_username"`
	EncryptedSMTPPassword []byte    `json:"-"`
	FromAddress           string    `json:"from_address"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MailSettingsRequest is the payload for saving mailbox settings.
// Passwords are optional on update; existing ones are preserved when omitted.
type MailSettingsRequest struct {
	IMAPServerHostname string `json:"imap_server_hostname"`
	IMAPUsername       string `json:"imap_username"`
	IMAPPassword       string `json:"imap_password"`
	SMTPServerHostname string `json:"smtp_server_hostname"`
	SMTPUsername       string `json:"smtp_username"`
	SMTPPassword       string `json:"smtp_password"`
	FromAddress        string `json:"from_address"`
}

// MailSettingsResponse is the settings payload returned to the admin UI.
// Passwords are never included, only whether they are set.
type MailSettingsResponse struct {
	IMAPServerHostname string `json:"imap_server_hostname"`
	IMAPUsername       string `json:"imap_username"`
	IMAPPasswordSet    bool   `json:"imap_password_set"`
	SMTPServerHostname string `json:"smtp_server_hostname"`
	SMTPUsername       string `json:"smtp_username"`
	SMTPPasswordSet    bool   `json:"smtp_password_set"`
	FromAddress        string `json:"from_address"`
}
