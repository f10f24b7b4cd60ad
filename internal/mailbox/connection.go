package mailbox

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// ConnectToIMAP connects to the IMAP server with a 5-second timeout.
// useTLS: true for production (TLS), false for tests (non-TLS).
func ConnectToIMAP(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return c, nil
}

// Login connects and authenticates against the configured IMAP server.
func Login(server, username, password string, useTLS bool) (*client.Client, error) {
	c, err := ConnectToIMAP(server, useTLS)
	if err != nil {
		return nil, err
	}

	if err := c.Login(username, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	return c, nil
}
