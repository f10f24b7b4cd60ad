package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/mail"
	"github.com/folioworks/mailroom/internal/models"
)

// ContactHandler handles conversation-related API requests.
type ContactHandler struct {
	pool    *pgxpool.Pool
	mailers mail.Source
}

// NewContactHandler creates a new ContactHandler instance.
func NewContactHandler(pool *pgxpool.Pool, mailers mail.Source) *ContactHandler {
	return &ContactHandler{
		pool:    pool,
		mailers: mailers,
	}
}

// threadResponse is the payload for GET /contact/{id}/thread.
type threadResponse struct {
	Conversation *models.Conversation    `json:"conversation"`
	Messages     []*models.ThreadMessage `json:"messages"`
}

// replyRequest is the payload for PUT /contact/{id}/reply.
type replyRequest struct {
	ReplyMessage string              `json:"replyMessage"`
	Attachments  []models.Attachment `json:"attachments"`
}

// readRequest is the payload for PUT /contact/{id}/read.
type readRequest struct {
	IsRead bool `json:"isRead"`
}

// List returns all conversations, newest first.
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	conversations, err := db.ListConversations(r.Context(), h.pool)
	if err != nil {
		log.Printf("ContactHandler: Failed to list conversations: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if conversations == nil {
		conversations = []*models.Conversation{}
	}

	WriteJSONResponse(w, conversations)
}

// Thread returns one conversation with its full message sequence.
func (h *ContactHandler) Thread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	conv, err := db.GetConversation(ctx, h.pool, id)
	if errors.Is(err, db.ErrConversationNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		log.Printf("ContactHandler: Failed to get conversation: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	messages, err := db.GetThreadMessages(ctx, h.pool, id)
	if err != nil {
		log.Printf("ContactHandler: Failed to get thread messages: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.attachThreadAttachments(ctx, conv, messages); err != nil {
		// Attachment metadata is secondary; return the thread without it.
		log.Printf("ContactHandler: Failed to load attachments: %v", err)
	}

	if messages == nil {
		messages = []*models.ThreadMessage{}
	}

	WriteJSONResponse(w, threadResponse{Conversation: conv, Messages: messages})
}

// attachThreadAttachments fills in attachment metadata (with download URLs)
// for the conversation and each thread message.
func (h *ContactHandler) attachThreadAttachments(ctx context.Context, conv *models.Conversation, messages []*models.ThreadMessage) error {
	convAtts, err := db.GetAttachmentsForConversation(ctx, h.pool, conv.ID)
	if err != nil {
		return err
	}
	conv.Attachments = withAttachmentURLs(convAtts)

	messageIDs := make([]string, 0, len(messages))
	for _, msg := range messages {
		messageIDs = append(messageIDs, msg.ID)
	}

	attachmentsByMessage, err := db.GetAttachmentsForThreadMessages(ctx, h.pool, messageIDs)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		msg.Attachments = withAttachmentURLs(attachmentsByMessage[msg.ID])
	}

	return nil
}

// MarkRead sets the read flag on a conversation. Repeating the same flag is
// idempotent.
func (h *ContactHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req readRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	err := db.SetConversationRead(r.Context(), h.pool, id, req.IsRead)
	if errors.Is(err, db.ErrConversationNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		log.Printf("ContactHandler: Failed to set read flag: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reply sends an admin reply within a conversation. The reply is recorded as
// an outbound thread message and, as a delivery side effect, as a sent-mail
// record. State is only advanced after the delivery attempt resolves.
func (h *ContactHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req replyRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	body := strings.TrimSpace(req.ReplyMessage)
	if body == "" {
		WriteJSONError(w, http.StatusBadRequest, "Reply message must not be empty")
		return
	}

	conv, err := db.GetConversation(ctx, h.pool, id)
	if errors.Is(err, db.ErrConversationNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		log.Printf("ContactHandler: Failed to get conversation: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	sender, settings, err := h.mailers.Mailer(ctx)
	if errors.Is(err, mail.ErrNotConfigured) {
		WriteJSONError(w, http.StatusServiceUnavailable, "Email sending is not configured")
		return
	}
	if err != nil {
		log.Printf("ContactHandler: Failed to build mailer: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	msg, err := db.InsertReply(ctx, h.pool, id, body)
	if err != nil {
		log.Printf("ContactHandler: Failed to insert reply: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	attachmentIDs := attachmentIDsFromDescriptors(req.Attachments)
	if err := db.LinkAttachmentsToThreadMessage(ctx, h.pool, attachmentIDs, msg.ID); err != nil {
		log.Printf("ContactHandler: Failed to link attachments: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	subject := conv.Subject
	if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	outgoing := &mail.OutgoingMessage{
		From:      settings.FromAddress,
		To:        conv.SenderEmail,
		Subject:   subject,
		Body:      body,
		InReplyTo: conv.MessageIDHeader,
	}
	if err := h.loadAttachmentContents(ctx, attachmentIDs, outgoing); err != nil {
		log.Printf("ContactHandler: Failed to load attachment contents: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// The reply also shows up in the sent-mail ledger.
	record := &models.SentMail{To: conv.SenderEmail, Subject: subject, Body: body}
	if err := db.InsertSentMail(ctx, h.pool, record); err != nil {
		log.Printf("ContactHandler: Failed to insert sent-mail record: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := db.LinkAttachmentsToSentMail(ctx, h.pool, attachmentIDs, record.ID); err != nil {
		log.Printf("ContactHandler: Failed to link sent-mail attachments: %v", err)
	}

	providerID, sendErr := sender.Send(ctx, outgoing)
	if sendErr != nil {
		log.Printf("ContactHandler: Reply delivery failed: %v", sendErr)
		if err := db.SetThreadMessageDeliveryStatus(ctx, h.pool, msg.ID, models.DeliveryStatusFailed); err != nil {
			log.Printf("ContactHandler: Failed to mark reply failed: %v", err)
		}
		if err := db.MarkSentMailFailed(ctx, h.pool, record.ID, sendErr.Error()); err != nil {
			log.Printf("ContactHandler: Failed to mark sent-mail record failed: %v", err)
		}
		WriteJSONError(w, http.StatusBadGateway, fmt.Sprintf("Failed to send reply: %v", sendErr))
		return
	}

	if err := db.SetThreadMessageDeliveryStatus(ctx, h.pool, msg.ID, models.DeliveryStatusSent); err != nil {
		log.Printf("ContactHandler: Failed to mark reply sent: %v", err)
	}
	if err := db.MarkSentMailSent(ctx, h.pool, record.ID, providerID); err != nil {
		log.Printf("ContactHandler: Failed to mark sent-mail record sent: %v", err)
	}
	if err := db.SetConversationStatus(ctx, h.pool, id, models.ConversationStatusReplied); err != nil {
		log.Printf("ContactHandler: Failed to mark conversation replied: %v", err)
	}

	msg.DeliveryStatus = models.DeliveryStatusSent
	WriteJSONResponse(w, msg)
}

// Delete removes a conversation along with its thread and attachments.
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := db.DeleteConversation(r.Context(), h.pool, id)
	if errors.Is(err, db.ErrConversationNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		log.Printf("ContactHandler: Failed to delete conversation: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// loadAttachmentContents reads attachment blobs and adds them to the outgoing
// message.
func (h *ContactHandler) loadAttachmentContents(ctx context.Context, attachmentIDs []string, outgoing *mail.OutgoingMessage) error {
	for _, attID := range attachmentIDs {
		meta, content, err := db.GetAttachment(ctx, h.pool, attID)
		if err != nil {
			return err
		}
		outgoing.Attachments = append(outgoing.Attachments, mail.AttachmentContent{
			Meta:    *meta,
			Content: content,
		})
	}
	return nil
}
