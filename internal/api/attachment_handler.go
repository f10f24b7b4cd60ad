package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/models"
)

// maxAttachmentSize is the per-file upload limit. Files over the limit are
// skipped, not rejected as a batch.
const maxAttachmentSize = 25 * 1024 * 1024

const attachmentURLPrefix = "/contact/attachments/"

// AttachmentHandler handles attachment upload and download requests.
type AttachmentHandler struct {
	pool *pgxpool.Pool
}

// NewAttachmentHandler creates a new AttachmentHandler instance.
func NewAttachmentHandler(pool *pgxpool.Pool) *AttachmentHandler {
	return &AttachmentHandler{pool: pool}
}

// uploadResponse is the payload for POST /contact/attachments.
type uploadResponse struct {
	Attachments []models.Attachment `json:"attachments"`
	Skipped     []skippedFile       `json:"skipped,omitempty"`
}

type skippedFile struct {
	OriginalName string `json:"originalName"`
	Reason       string `json:"reason"`
}

// Upload accepts one or more files as multipart form data and stores each as
// an unowned attachment. Files over the size limit are reported in the
// response but do not fail the batch.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Expected multipart form data")
		return
	}

	resp := uploadResponse{Attachments: []models.Attachment{}}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			WriteJSONError(w, http.StatusBadRequest, "Malformed multipart form data")
			return
		}
		if part.FileName() == "" {
			continue
		}

		content, err := io.ReadAll(io.LimitReader(part, maxAttachmentSize+1))
		part.Close()
		if err != nil {
			WriteJSONError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		if len(content) > maxAttachmentSize {
			resp.Skipped = append(resp.Skipped, skippedFile{
				OriginalName: part.FileName(),
				Reason:       "File exceeds the 25MB limit",
			})
			continue
		}

		att := models.Attachment{
			ID:           uuid.New().String(),
			OriginalName: part.FileName(),
			MimeType:     detectMimeType(part.Header.Get("Content-Type"), part.FileName()),
			Size:         int64(len(content)),
		}
		if err := db.SaveAttachment(r.Context(), h.pool, &att, content); err != nil {
			log.Printf("AttachmentHandler: Failed to save attachment: %v", err)
			WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		att.URL = attachmentURLPrefix + att.ID
		resp.Attachments = append(resp.Attachments, att)
	}

	WriteJSONResponse(w, resp)
}

// Download streams a stored attachment back to the caller.
func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	meta, content, err := db.GetAttachment(r.Context(), h.pool, id)
	if errors.Is(err, db.ErrAttachmentNotFound) {
		WriteJSONError(w, http.StatusNotFound, "Attachment not found")
		return
	}
	if err != nil {
		log.Printf("AttachmentHandler: Failed to get attachment: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.OriginalName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
	if _, err := w.Write(content); err != nil {
		log.Printf("AttachmentHandler: Failed to write attachment body: %v", err)
	}
}

// detectMimeType prefers the declared content type and falls back to the file
// extension.
func detectMimeType(declared, filename string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// withAttachmentURLs fills in the download URL on each attachment.
func withAttachmentURLs(attachments []models.Attachment) []models.Attachment {
	for i := range attachments {
		attachments[i].URL = attachmentURLPrefix + attachments[i].ID
	}
	return attachments
}

// attachmentIDsFromDescriptors extracts attachment IDs from client-provided
// descriptors, accepting either an explicit ID or a download URL.
func attachmentIDsFromDescriptors(descriptors []models.Attachment) []string {
	ids := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		id := d.ID
		if id == "" {
			id = strings.TrimPrefix(d.URL, attachmentURLPrefix)
		}
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids
}
