package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/folioworks/mailroom/internal/models"
)

// MaxAttachmentSize is the per-file upload ceiling. Oversized files are
// excluded from the batch with a warning; the remaining files still upload.
const MaxAttachmentSize = 25 * 1024 * 1024

// AttachmentUploader uploads files and accumulates the returned descriptors
// until a reply or compose consumes them. Within a compose session the URL is
// the stable key for each pending attachment.
type AttachmentUploader struct {
	api    *API
	notify Notifier

	mu        sync.Mutex
	pending   []models.Attachment
	uploading bool
}

// NewAttachmentUploader creates a new AttachmentUploader.
func NewAttachmentUploader(api *API, notify Notifier) *AttachmentUploader {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &AttachmentUploader{
		api:    api,
		notify: notify,
	}
}

// Uploading reports whether an upload is in flight.
func (u *AttachmentUploader) Uploading() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploading
}

// Upload sends the files that fit under the size ceiling and appends the
// returned descriptors to the pending list. Oversized files are dropped with
// a warning rather than failing the batch. An upload already in flight makes
// further calls no-ops until it settles.
func (u *AttachmentUploader) Upload(ctx context.Context, files []FileUpload) error {
	u.mu.Lock()
	if u.uploading {
		u.mu.Unlock()
		return nil
	}
	u.uploading = true
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		u.uploading = false
		u.mu.Unlock()
	}()

	valid := make([]FileUpload, 0, len(files))
	for _, file := range files {
		if len(file.Content) > MaxAttachmentSize {
			u.notify.Warning(fmt.Sprintf("%s exceeds the 25MB limit and was not uploaded", file.Name))
			continue
		}
		valid = append(valid, file)
	}
	if len(valid) == 0 {
		return nil
	}

	result, err := u.api.UploadAttachments(ctx, valid)
	if err != nil {
		u.notify.Error(errorMessage(err, "Failed to upload attachments"))
		return err
	}

	for _, skipped := range result.Skipped {
		u.notify.Warning(fmt.Sprintf("%s was not uploaded: %s", skipped.OriginalName, skipped.Reason))
	}

	u.mu.Lock()
	u.pending = append(u.pending, result.Attachments...)
	u.mu.Unlock()
	return nil
}

// Pending returns a copy of the pending attachment descriptors.
func (u *AttachmentUploader) Pending() []models.Attachment {
	u.mu.Lock()
	defer u.mu.Unlock()
	pending := make([]models.Attachment, len(u.pending))
	copy(pending, u.pending)
	return pending
}

// Remove drops a pending attachment by its URL.
func (u *AttachmentUploader) Remove(url string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	kept := u.pending[:0]
	for _, att := range u.pending {
		if att.URL != url {
			kept = append(kept, att)
		}
	}
	u.pending = kept
}

// Clear drops all pending attachments, after a successful send consumes them.
func (u *AttachmentUploader) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = nil
}
