package gmail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	gmailapi "google.golang.org/api/gmail/v1"
)

func TestParseMessage(t *testing.T) {
	msg := &gmailapi.Message{
		Id:           "abc123",
		InternalDate: 1714550400000,
		Snippet:      "Your invoice is ready",
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "Subject", Value: "Invoice #42"},
				{Name: "From", Value: "Billing Team <billing@vendor.com>"},
				{Name: "To", Value: "Jane <jane@corp.com>, ops@corp.com"},
				{Name: "Message-ID", Value: "<id-42@vendor.com>"},
			},
		},
	}

	event := parseMessage(msg, "owner@corp.com")

	assert.Equal(t, "<id-42@vendor.com>", event.MessageID)
	assert.Equal(t, "Invoice #42", event.Subject)
	assert.Equal(t, "billing@vendor.com", event.Sender)
	assert.Equal(t, []string{"jane@corp.com", "ops@corp.com"}, event.Recipients)
	assert.Equal(t, "owner@corp.com", event.Owner)
	assert.Equal(t, "UNREAD", event.EventType)
	assert.Equal(t, "abc123", event.Raw["gmail_id"])
	assert.Equal(t, "Your invoice is ready", event.Raw["snippet"])
	assert.Equal(t, time.UnixMilli(1714550400000).UTC(), event.Timestamp)
}

func TestParseMessageDefaults(t *testing.T) {
	event := parseMessage(&gmailapi.Message{Id: "xyz"}, "owner@corp.com")

	assert.Equal(t, "(no subject)", event.Subject)
	assert.Equal(t, "xyz", event.MessageID, "falls back to the internal id")
	assert.Empty(t, event.Recipients)
	assert.False(t, event.Timestamp.IsZero())
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "a@b.c", extractAddress("Name <a@b.c>"))
	assert.Equal(t, "a@b.c", extractAddress("a@b.c"))
	assert.Equal(t, "a@b.c", extractAddress("  a@b.c  "))
	assert.Equal(t, "", extractAddress(""))
}
