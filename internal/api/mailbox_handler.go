package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folioworks/mailroom/internal/crypto"
	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/mail"
	"github.com/folioworks/mailroom/internal/mailbox"
	"github.com/folioworks/mailroom/internal/models"
)

// MailboxHandler handles mailbox import, watcher and configuration requests.
type MailboxHandler struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	mailers   mail.Source
	importer  *mailbox.Importer
	watcher   *mailbox.Watcher
}

// NewMailboxHandler creates a new MailboxHandler instance.
func NewMailboxHandler(pool *pgxpool.Pool, encryptor *crypto.Encryptor, mailers mail.Source, importer *mailbox.Importer, watcher *mailbox.Watcher) *MailboxHandler {
	return &MailboxHandler{
		pool:      pool,
		encryptor: encryptor,
		mailers:   mailers,
		importer:  importer,
		watcher:   watcher,
	}
}

// importRequest is the payload for POST /contact/import-emails.
type importRequest struct {
	FullSync bool `json:"fullSync"`
}

// importResponse reports how many new messages an import run stored.
type importResponse struct {
	Imported int `json:"imported"`
}

// watchResponse reports whether the background mailbox watcher is running.
type watchResponse struct {
	Watching bool `json:"watching"`
}

// configStatusResponse reports whether outbound email is configured.
type configStatusResponse struct {
	CanSendEmail bool `json:"canSendEmail"`
}

// Import runs a mailbox import. A full sync re-reads the whole folder and
// threads by mailbox references; an incremental sync continues from the last
// seen UID.
func (h *MailboxHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	imported, err := h.importer.Import(r.Context(), req.FullSync)
	if errors.Is(err, mailbox.ErrMailboxNotConfigured) {
		WriteJSONError(w, http.StatusServiceUnavailable, "Mailbox is not configured")
		return
	}
	if err != nil {
		log.Printf("MailboxHandler: Import failed: %v", err)
		WriteJSONError(w, http.StatusBadGateway, "Failed to import emails")
		return
	}

	WriteJSONResponse(w, importResponse{Imported: imported})
}

// WatchStatus reports whether the background watcher is running.
func (h *MailboxHandler) WatchStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, watchResponse{Watching: h.watcher.Watching()})
}

// StartWatch starts the background watcher. Starting an already running
// watcher is a no-op.
func (h *MailboxHandler) StartWatch(w http.ResponseWriter, r *http.Request) {
	h.watcher.Start()
	WriteJSONResponse(w, watchResponse{Watching: h.watcher.Watching()})
}

// StopWatch stops the background watcher. Stopping a stopped watcher is a
// no-op.
func (h *MailboxHandler) StopWatch(w http.ResponseWriter, r *http.Request) {
	h.watcher.Stop()
	WriteJSONResponse(w, watchResponse{Watching: h.watcher.Watching()})
}

// ConfigStatus reports whether outbound email is configured, so the admin UI
// can hide reply and compose affordances when it is not.
func (h *MailboxHandler) ConfigStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, configStatusResponse{CanSendEmail: h.mailers.CanSend(r.Context())})
}

// GetConfig returns the stored mailbox settings without passwords.
func (h *MailboxHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := db.GetMailSettings(r.Context(), h.pool)
	if errors.Is(err, db.ErrMailSettingsNotFound) {
		WriteJSONResponse(w, models.MailSettingsResponse{})
		return
	}
	if err != nil {
		log.Printf("MailboxHandler: Failed to get mail settings: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	WriteJSONResponse(w, models.MailSettingsResponse{
		IMAPServerHostname: settings.IMAPServerHostname,
		IMAPUsername:       settings.IMAPUsername,
		IMAPPasswordSet:    len(settings.EncryptedIMAPPassword) > 0,
		SMTPServerHostname: settings.SMTPServerHostname,
		SMTPUsername:       settings.SMTPUsername,
		SMTPPasswordSet:    len(settings.EncryptedSMTPPassword) > 0,
		FromAddress:        settings.FromAddress,
	})
}

// SaveConfig stores mailbox settings. Omitted passwords keep their stored
// values.
func (h *MailboxHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.MailSettingsRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	settings := &models.MailSettings{
		IMAPServerHostname: strings.TrimSpace(req.IMAPServerHostname),
		IMAPUsername:       strings.TrimSpace(req.IMAPUsername),
		SMTPServerHostname: strings.TrimSpace(req.SMTPServerHostname),
		SMTPUsername:       strings.TrimSpace(req.SMTPUsername),
		FromAddress:        strings.TrimSpace(req.FromAddress),
	}
	if settings.IMAPServerHostname == "" || settings.SMTPServerHostname == "" || settings.FromAddress == "" {
		WriteJSONError(w, http.StatusBadRequest, "IMAP server, SMTP server and from address are required")
		return
	}

	existing, err := db.GetMailSettings(ctx, h.pool)
	if err != nil && !errors.Is(err, db.ErrMailSettingsNotFound) {
		log.Printf("MailboxHandler: Failed to load existing settings: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	settings.EncryptedIMAPPassword, err = h.resolvePassword(req.IMAPPassword, existing, func(s *models.MailSettings) []byte { return s.EncryptedIMAPPassword })
	if err != nil {
		log.Printf("MailboxHandler: Failed to encrypt IMAP password: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	settings.EncryptedSMTPPassword, err = h.resolvePassword(req.SMTPPassword, existing, func(s *models.MailSettings) []byte { return s.EncryptedSMTPPassword })
	if err != nil {
		log.Printf("MailboxHandler: Failed to encrypt SMTP password: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := db.SaveMailSettings(ctx, h.pool, settings); err != nil {
		log.Printf("MailboxHandler: Failed to save mail settings: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// resolvePassword encrypts a newly supplied password or keeps the stored one
// when the request omits it.
func (h *MailboxHandler) resolvePassword(plaintext string, existing *models.MailSettings, stored func(*models.MailSettings) []byte) ([]byte, error) {
	if plaintext != "" {
		return h.encryptor.Encrypt(plaintext)
	}
	if existing != nil {
		return stored(existing), nil
	}
	return nil, nil
}
