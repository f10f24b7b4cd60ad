package mailbox

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestStripSubjectPrefix(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{name: "plain subject", subject: "Project inquiry", want: "Project inquiry"},
		{name: "re prefix", subject: "Re: Project inquiry", want: "Project inquiry"},
		{name: "uppercase re", subject: "RE: Project inquiry", want: "Project inquiry"},
		{name: "fwd prefix", subject: "Fwd: Project inquiry", want: "Project inquiry"},
		{name: "fw prefix", subject: "FW: Project inquiry", want: "Project inquiry"},
		{name: "stacked prefixes", subject: "Re: Fwd: Re: Project inquiry", want: "Project inquiry"},
		{name: "surrounding whitespace", subject: "  Re:   Hello  ", want: "Hello"},
		{name: "empty", subject: "", want: ""},
		{name: "prefix only", subject: "Re:", want: ""},
		{name: "re inside subject stays", subject: "More: Re-design", want: "More: Re-design"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripSubjectPrefix(tt.subject))
		})
	}
}

func TestAppendUniqueReference(t *testing.T) {
	refs := appendUniqueReference(nil, "<a@example.com>")
	refs = appendUniqueReference(refs, "<b@example.com>")
	refs = appendUniqueReference(refs, "<a@example.com>")
	refs = appendUniqueReference(refs, "")

	assert.Equal(t, []string{"<a@example.com>", "<b@example.com>"}, refs)
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "<a@example.com>", normalizeMessageID("  <a@example.com> \n"))
	assert.Equal(t, "", normalizeMessageID("   "))
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name    string
		address *imap.Address
		want    string
	}{
		{
			name:    "regular address",
			address: &imap.Address{PersonalName: "Alice", MailboxName: "alice", HostName: "example.com"},
			want:    "alice@example.com",
		},
		{name: "nil address", address: nil, want: ""},
		{name: "empty address", address: &imap.Address{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAddress(tt.address))
		})
	}
}

func TestParseMessageEnvelopeOnly(t *testing.T) {
	imapMsg := &imap.Message{
		Uid: 7,
		Envelope: &imap.Envelope{
			MessageId: "<env-1@example.com>",
			Subject:   "Hello",
			From:      []*imap.Address{{PersonalName: "Alice", MailboxName: "alice", HostName: "example.com"}},
			InReplyTo: "<root@example.com>",
		},
	}

	parsed, err := ParseMessage(imapMsg)
	assert.NoError(t, err)
	assert.EqualValues(t, 7, parsed.UID)
	assert.Equal(t, "<env-1@example.com>", parsed.MessageID)
	assert.Equal(t, "Alice", parsed.FromName)
	assert.Equal(t, "alice@example.com", parsed.FromAddress)
	assert.Equal(t, []string{"<root@example.com>"}, parsed.References)
	assert.False(t, parsed.Date.IsZero(), "a missing date falls back to now")
}

func TestParseMessageNil(t *testing.T) {
	_, err := ParseMessage(nil)
	assert.Error(t, err)
}
