package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folioworks/mailroom/internal/api"
	"github.com/folioworks/mailroom/internal/auth"
	"github.com/folioworks/mailroom/internal/config"
	"github.com/folioworks/mailroom/internal/crypto"
	"github.com/folioworks/mailroom/internal/db"
	"github.com/folioworks/mailroom/internal/mail"
	"github.com/folioworks/mailroom/internal/mailbox"
	ws "github.com/folioworks/mailroom/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	server := NewServer(cfg, pool)

	address := ":" + cfg.Port
	log.Printf("Mailroom server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates and returns a new HTTP handler for the mailroom API
// server.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) http.Handler {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	mailers := mail.NewSettingsSource(dbPool, encryptor)
	importer := mailbox.NewImporter(dbPool, encryptor)
	wsHub := ws.NewHub(10)
	watcher := mailbox.NewWatcher(importer, wsHub)

	contactHandler := api.NewContactHandler(dbPool, mailers)
	sentHandler := api.NewSentHandler(dbPool, mailers)
	attachmentHandler := api.NewAttachmentHandler(dbPool)
	mailboxHandler := api.NewMailboxHandler(dbPool, encryptor, mailers, importer, watcher)
	wsHandler := api.NewWSHandler(wsHub, cfg.APIToken)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	protected := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, auth.RequireToken(cfg.APIToken, handler))
	}

	protected("GET /contact", contactHandler.List)
	protected("GET /contact/{id}/thread", contactHandler.Thread)
	protected("PUT /contact/{id}/read", contactHandler.MarkRead)
	protected("PUT /contact/{id}/reply", contactHandler.Reply)
	protected("DELETE /contact/{id}", contactHandler.Delete)

	protected("GET /contact/sent", sentHandler.List)
	protected("POST /contact/compose", sentHandler.Compose)
	protected("POST /contact/sent/{id}/retry", sentHandler.Retry)
	protected("DELETE /contact/sent/{id}", sentHandler.Delete)

	protected("POST /contact/upload-attachment", attachmentHandler.Upload)
	protected("GET /contact/attachments/{id}", attachmentHandler.Download)

	protected("POST /contact/import-emails", mailboxHandler.Import)
	protected("GET /contact/watch-emails/status", mailboxHandler.WatchStatus)
	protected("POST /contact/watch-emails/start", mailboxHandler.StartWatch)
	protected("POST /contact/watch-emails/stop", mailboxHandler.StopWatch)
	protected("GET /contact/email-config-status", mailboxHandler.ConfigStatus)
	protected("GET /contact/email-config", mailboxHandler.GetConfig)
	protected("PUT /contact/email-config", mailboxHandler.SaveConfig)

	// The WebSocket handler authenticates itself via query parameter, since
	// browsers can't set headers on WebSocket connections.
	mux.Handle("/contact/ws", http.HandlerFunc(wsHandler.Serve))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Mailroom API is running")
}
