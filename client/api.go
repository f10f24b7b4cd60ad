// Package client implements the admin-side sync layer for the mailroom API:
// a conversation store, thread loader, reply sender, sent-mail ledger,
// attachment uploader and the poller that keeps them fresh.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/folioworks/mailroom/internal/models"
)

// APIError is a non-2xx response from the mailroom API, carrying the
// server-provided message when one was present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// API is an HTTP client for the mailroom contact endpoints.
type API struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPI creates a new API client.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListConversations fetches all conversations, newest first.
func (a *API) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	if err := a.doJSON(ctx, http.MethodGet, "/contact", nil, &conversations); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// Thread is the response for a single conversation's message sequence.
type Thread struct {
	Conversation *models.Conversation    `json:"conversation"`
	Messages     []*models.ThreadMessage `json:"messages"`
}

// GetThread fetches one conversation's full message sequence.
func (a *API) GetThread(ctx context.Context, conversationID string) (*Thread, error) {
	var thread Thread
	if err := a.doJSON(ctx, http.MethodGet, "/contact/"+conversationID+"/thread", nil, &thread); err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &thread, nil
}

// MarkRead sets the read flag on a conversation.
func (a *API) MarkRead(ctx context.Context, conversationID string, isRead bool) error {
	body := map[string]bool{"isRead": isRead}
	if err := a.doJSON(ctx, http.MethodPut, "/contact/"+conversationID+"/read", body, nil); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

// Reply sends an admin reply within a conversation.
func (a *API) Reply(ctx context.Context, conversationID, message string, attachments []models.Attachment) (*models.ThreadMessage, error) {
	body := map[string]any{
		"replyMessage": message,
		"attachments":  attachments,
	}
	var reply models.ThreadMessage
	if err := a.doJSON(ctx, http.MethodPut, "/contact/"+conversationID+"/reply", body, &reply); err != nil {
		return nil, fmt.Errorf("failed to send reply: %w", err)
	}
	return &reply, nil
}

// DeleteConversation deletes a conversation and its thread.
func (a *API) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := a.doJSON(ctx, http.MethodDelete, "/contact/"+conversationID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ListSentMail fetches all sent-mail records, newest first.
func (a *API) ListSentMail(ctx context.Context) ([]*models.SentMail, error) {
	var records []*models.SentMail
	if err := a.doJSON(ctx, http.MethodGet, "/contact/sent", nil, &records); err != nil {
		return nil, fmt.Errorf("failed to list sent mail: %w", err)
	}
	return records, nil
}

// Compose sends a standalone email outside any conversation.
func (a *API) Compose(ctx context.Context, to, subject, message string, attachments []models.Attachment) (*models.SentMail, error) {
	body := map[string]any{
		"to":          to,
		"subject":     subject,
		"message":     message,
		"attachments": attachments,
	}
	var record models.SentMail
	if err := a.doJSON(ctx, http.MethodPost, "/contact/compose", body, &record); err != nil {
		return nil, fmt.Errorf("failed to compose email: %w", err)
	}
	return &record, nil
}

// RetrySentMail re-attempts delivery of a failed sent-mail record.
func (a *API) RetrySentMail(ctx context.Context, id string) (*models.SentMail, error) {
	var record models.SentMail
	if err := a.doJSON(ctx, http.MethodPost, "/contact/sent/"+id+"/retry", nil, &record); err != nil {
		return nil, fmt.Errorf("failed to retry sent mail: %w", err)
	}
	return &record, nil
}

// DeleteSentMail removes a sent-mail record from the ledger.
func (a *API) DeleteSentMail(ctx context.Context, id string) error {
	if err := a.doJSON(ctx, http.MethodDelete, "/contact/sent/"+id, nil, nil); err != nil {
		return fmt.Errorf("failed to delete sent mail: %w", err)
	}
	return nil
}

// UploadResult is the response to an attachment upload.
type UploadResult struct {
	Attachments []models.Attachment `json:"attachments"`
	Skipped     []SkippedUpload     `json:"skipped"`
}

// SkippedUpload reports a file the server refused to store.
type SkippedUpload struct {
	OriginalName string `json:"originalName"`
	Reason       string `json:"reason"`
}

// FileUpload is one file to include in an upload batch.
type FileUpload struct {
	Name    string
	Content []byte
}

// UploadAttachments uploads files as multipart form data and returns the
// stored attachment descriptors.
func (a *API) UploadAttachments(ctx context.Context, files []FileUpload) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to build upload form: %w", err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/contact/upload-attachment", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFromResponse(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// ImportEmails triggers a mailbox import and returns how many messages were
// stored.
func (a *API) ImportEmails(ctx context.Context, fullSync bool) (int, error) {
	body := map[string]bool{"fullSync": fullSync}
	var result struct {
		Imported int `json:"imported"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/contact/import-emails", body, &result); err != nil {
		return 0, fmt.Errorf("failed to import emails: %w", err)
	}
	return result.Imported, nil
}

// WatchStatus reports whether the server-side mailbox watcher is running.
func (a *API) WatchStatus(ctx context.Context) (bool, error) {
	var result struct {
		Watching bool `json:"watching"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/contact/watch-emails/status", nil, &result); err != nil {
		return false, fmt.Errorf("failed to get watch status: %w", err)
	}
	return result.Watching, nil
}

// StartWatch starts the server-side mailbox watcher.
func (a *API) StartWatch(ctx context.Context) error {
	if err := a.doJSON(ctx, http.MethodPost, "/contact/watch-emails/start", nil, nil); err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	return nil
}

// StopWatch stops the server-side mailbox watcher.
func (a *API) StopWatch(ctx context.Context) error {
	if err := a.doJSON(ctx, http.MethodPost, "/contact/watch-emails/stop", nil, nil); err != nil {
		return fmt.Errorf("failed to stop watch: %w", err)
	}
	return nil
}

// CanSendEmail reports whether the server has outbound email configured.
func (a *API) CanSendEmail(ctx context.Context) (bool, error) {
	var result struct {
		CanSendEmail bool `json:"canSendEmail"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/contact/email-config-status", nil, &result); err != nil {
		return false, fmt.Errorf("failed to get email config status: %w", err)
	}
	return result.CanSendEmail, nil
}

// doJSON issues a request with an optional JSON body and decodes the JSON
// response into out when out is non-nil.
func (a *API) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiErrorFromResponse extracts the server's {"error": "..."} message when the
// body carries one.
func apiErrorFromResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}
