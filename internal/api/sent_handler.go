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

// SentHandler handles the sent-mail ledger API requests.
type SentHandler struct {
	pool    *pgxpool.Pool
	mailers mail.Source
}

// NewSentHandler creates a new SentHandler instance.
func NewSentHandler(pool *pgxpool.Pool, mailers mail.Source) *SentHandler {
	return &SentHandler{
		pool:    pool,
		mailers: mailers,
	}
}

// composeRequest is the payload for POST /contact/sent.
type composeRequest struct {
	To          string              `json:"to"`
	Subject     string              `json:"subject"`
	Message     string              `json:"message"`
	Attachments []models.Attachment `json:"attachments"`
}

// List returns all sent-mail records, newest first.
func (h *SentHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := db.ListSentMail(r.Context(), h.pool)
	if err != nil {
		log.Printf("SentHandler: Failed to list sent mail: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if records == nil {
		records = []*models.SentMail{}
	}

	WriteJSONResponse(w, records)
}

// Compose sends a standalone email outside any conversation and records it in
// the ledger.
func (h *SentHandler) Compose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req composeRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	to := strings.TrimSpace(req.To)
	subject := strings.TrimSpace(req.Subject)
	body := strings.TrimSpace(req.Message)
	if to == "" || subject == "" || body == "" {
		WriteJSONError(w, http.StatusBadRequest, "Recipient, subject and message are all required")
		return
	}

	sender, settings, err := h.mailers.Mailer(ctx)
	if errors.Is(err, mail.ErrNotConfigured) {
		WriteJSONError(w, http.StatusServiceUnavailable, "Email sending is not configured")
		return
	}
	if err != nil {
		log.Printf("SentHandler: Failed to build mailer: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	record := &models.SentMail{To: to, Subject: subject, Body: body}
	if err := db.InsertSentMail(ctx, h.pool, record); err != nil {
		log.Printf("SentHandler: Failed to insert sent-mail record: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	attachmentIDs := attachmentIDsFromDescriptors(req.Attachments)
	if err := db.LinkAttachmentsToSentMail(ctx, h.pool, attachmentIDs, record.ID); err != nil {
		log.Printf("SentHandler: Failed to link attachments: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	outgoing := &mail.OutgoingMessage{
		From:    settings.FromAddress,
		To:      to,
		Subject: subject,
		Body:    body,
	}
	if err := h.loadAttachmentContents(ctx, attachmentIDs, outgoing); err != nil {
		log.Printf("SentHandler: Failed to load attachment contents: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.deliver(ctx, w, sender, record, outgoing)
}

// Retry re-attempts delivery of a previously failed sent-mail record. Only
// failed records are retryable.
func (h *SentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	err := db.ResetSentMailForRetry(ctx, h.pool, id)
	if errors.Is(err, db.ErrSentMailNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Sent-mail record not found")
		return
	}
	if errors.Is(err, db.ErrSentMailNotRetryable) {
		WriteJSONError(w, http.StatusConflict, "Only failed emails can be retried")
		return
	}
	if err != nil {
		log.Printf("SentHandler: Failed to reset record for retry: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	record, err := db.GetSentMail(ctx, h.pool, id)
	if err != nil {
		log.Printf("SentHandler: Failed to get sent-mail record: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	sender, settings, err := h.mailers.Mailer(ctx)
	if errors.Is(err, mail.ErrNotConfigured) {
		WriteJSONError(w, http.StatusServiceUnavailable, "Email sending is not configured")
		return
	}
	if err != nil {
		log.Printf("SentHandler: Failed to build mailer: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	outgoing := &mail.OutgoingMessage{
		From:    settings.FromAddress,
		To:      record.To,
		Subject: record.Subject,
		Body:    record.Body,
	}

	// The retry must re-attempt the same send, files included.
	attachments, err := db.GetAttachmentsForSentMail(ctx, h.pool, id)
	if err != nil {
		log.Printf("SentHandler: Failed to get sent-mail attachments: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	attachmentIDs := make([]string, 0, len(attachments))
	for _, att := range attachments {
		attachmentIDs = append(attachmentIDs, att.ID)
	}
	if err := h.loadAttachmentContents(ctx, attachmentIDs, outgoing); err != nil {
		log.Printf("SentHandler: Failed to load attachment contents: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.deliver(ctx, w, sender, record, outgoing)
}

// Delete removes a sent-mail record from the ledger.
func (h *SentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := db.DeleteSentMail(r.Context(), h.pool, id)
	if errors.Is(err, db.ErrSentMailNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Sent-mail record not found")
		return
	}
	if err != nil {
		log.Printf("SentHandler: Failed to delete sent-mail record: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// deliver attempts delivery, resolves the record's pending status to sent or
// failed, and writes the final record to the response.
func (h *SentHandler) deliver(ctx context.Context, w http.ResponseWriter, sender mail.Sender, record *models.SentMail, outgoing *mail.OutgoingMessage) {
	providerID, sendErr := sender.Send(ctx, outgoing)
	if sendErr != nil {
		log.Printf("SentHandler: Delivery via %s failed: %v", sender.Name(), sendErr)
		if err := db.MarkSentMailFailed(ctx, h.pool, record.ID, sendErr.Error()); err != nil {
			log.Printf("SentHandler: Failed to mark record failed: %v", err)
		}
		WriteJSONError(w, http.StatusBadGateway, fmt.Sprintf("Failed to send email: %v", sendErr))
		return
	}

	if err := db.MarkSentMailSent(ctx, h.pool, record.ID, providerID); err != nil {
		log.Printf("SentHandler: Failed to mark record sent: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	record.Status = models.DeliveryStatusSent
	record.ProviderMessageID = providerID
	record.ErrorMessage = ""
	WriteJSONResponse(w, record)
}

// loadAttachmentContents reads attachment blobs and adds them to the outgoing
// message.
func (h *SentHandler) loadAttachmentContents(ctx context.Context, attachmentIDs []string, outgoing *mail.OutgoingMessage) error {
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
