package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer represents a test IMAP server instance.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// NewTestIMAPServer creates a new test IMAP server with an in-memory backend.
// The memory backend creates a default user with username "username" and password "password".
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	addr := listener.Addr().String()

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server error: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	cleanup := func() {
		_ = s.Close()
	}

	return &TestIMAPServer{
		Server:   s,
		Address:  addr,
		Backend:  be,
		cleanup:  cleanup,
		username: "username",
		password: "password",
	}
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Connect creates a new IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// InboundMail describes a message to seed into the test inbox.
type InboundMail struct {
	MessageID  string
	InReplyTo  string
	References []string
	From       string
	To         string
	Subject    string
	Body       string
	SentAt     time.Time
}

// AddMessage appends a message to the INBOX and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, mail InboundMail) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select("INBOX", false); err != nil {
		t.Fatalf("Failed to select INBOX: %v", err)
	}

	if mail.SentAt.IsZero() {
		mail.SentAt = time.Now()
	}
	if mail.Body == "" {
		mail.Body = "Test message body."
	}

	var headers strings.Builder
	fmt.Fprintf(&headers, "Message-ID: %s\r\n", mail.MessageID)
	if mail.InReplyTo != "" {
		fmt.Fprintf(&headers, "In-Reply-To: %s\r\n", mail.InReplyTo)
	}
	if len(mail.References) > 0 {
		fmt.Fprintf(&headers, "References: %s\r\n", strings.Join(mail.References, " "))
	}
	fmt.Fprintf(&headers, "Date: %s\r\n", mail.SentAt.Format(time.RFC1123Z))
	fmt.Fprintf(&headers, "From: %s\r\n", mail.From)
	fmt.Fprintf(&headers, "To: %s\r\n", mail.To)
	fmt.Fprintf(&headers, "Subject: %s\r\n", mail.Subject)
	headers.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")

	messageBody := headers.String() + mail.Body + "\r\n"

	flags := []string{imap.SeenFlag}
	if err := client.Append("INBOX", flags, time.Now(), strings.NewReader(messageBody)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-ID", mail.MessageID)
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search for message: %v", err)
	}
	if len(uids) == 0 {
		t.Fatalf("Message not found after append")
	}

	return uids[0]
}
