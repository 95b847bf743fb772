package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected string
	}{
		{
			name:     "empty subject",
			subject:  "",
			expected: "general mail",
		},
		{
			name:     "whitespace only",
			subject:  "   ",
			expected: "general mail",
		},
		{
			name:     "job application with applicant name",
			subject:  "[Greeting] Jane Kim applied for Backend Engineer",
			expected: "[Greeting] job application notice",
		},
		{
			name:     "domain expiry with domain name",
			subject:  "[NHN Domain] whatsell.co.kr domain renewal notice",
			expected: "[NHN Domain] domain expiry notice",
		},
		{
			name:     "payment failure",
			subject:  "Payment failed for order #93821",
			expected: "payment failure notice",
		},
		{
			name:     "payment receipt beats generic scrub",
			subject:  "Your payment receipt for 2024-05-01",
			expected: "payment receipt",
		},
		{
			name:     "invoice",
			subject:  "Invoice INV-20240501 is ready",
			expected: "invoice",
		},
		{
			name:     "weekly report",
			subject:  "Your weekly report is here",
			expected: "weekly report",
		},
		{
			name:     "newsletter",
			subject:  "ACME Newsletter — May edition",
			expected: "newsletter",
		},
		{
			name:     "reply prefix preserved",
			subject:  "Re: invoice for April",
			expected: "Re: invoice",
		},
		{
			name:     "generic subject scrubs domains and numbers",
			subject:  "Alert from example.com at 2024-05-01 id 123456",
			expected: "Alert from * at * id *",
		},
		{
			name:     "generic subject scrubs honorific names",
			subject:  "Meeting with Mr. Smith moved",
			expected: "Meeting with * moved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Extract(tt.subject))
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	subjects := []string{
		"[Greeting] Jane Kim applied for Backend Engineer",
		"Payment failed for order #93821",
		"Alert from example.com at 2024-05-01 id 123456",
		"Re: quarterly budget discussion with the finance team and all regional leads",
		"a subject that is quite long and will certainly run past the truncation boundary somewhere",
		"",
	}
	for _, s := range subjects {
		once := Extract(s)
		twice := Extract(once)
		assert.Equal(t, once, twice, "subject %q", s)
	}
}

func TestExtractTruncatesLongSubjects(t *testing.T) {
	long := "an unusually verbose subject line that keeps going well beyond any reasonable length"
	got := Extract(long)
	assert.LessOrEqual(t, len([]rune(got)), 43)
	assert.Contains(t, got, "...")
}
