// Package pattern derives a stable "mail type" signature from a subject
// line. Variable parts (names, domains, dates, numbers) are stripped so
// that recurring mails of the same kind map to the same pattern string.
package pattern

import (
	"regexp"
	"strings"
)

// DefaultPattern is returned for empty subjects.
const DefaultPattern = "general mail"

const maxPatternLen = 40

var prefixRe = regexp.MustCompile(`^(\[[^\]]+\]|Re:|RE:|Fwd:|FW:)\s*`)

// Known mail types, matched against the subject after the prefix is
// stripped. Each label matches its own rule, so extraction is idempotent.
var typeRules = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)job application|applied for|new applicant`), "job application notice"},
	{regexp.MustCompile(`(?i)interview.*schedule`), "interview schedule notice"},
	{regexp.MustCompile(`(?i)domain.*(renewal|expir)`), "domain expiry notice"},
	{regexp.MustCompile(`(?i)hosting.*renewal`), "hosting renewal notice"},
	{regexp.MustCompile(`(?i)payment.*fail`), "payment failure notice"},
	{regexp.MustCompile(`(?i)payment.*(complete|receipt|success)`), "payment receipt"},
	{regexp.MustCompile(`(?i)settlement`), "settlement request"},
	{regexp.MustCompile(`(?i)invoice`), "invoice"},
	{regexp.MustCompile(`(?i)daily.*report`), "daily report"},
	{regexp.MustCompile(`(?i)weekly.*report`), "weekly report"},
	{regexp.MustCompile(`(?i)monthly.*report`), "monthly report"},
	{regexp.MustCompile(`(?i)newsletter`), "newsletter"},
	{regexp.MustCompile(`(?i)promotion|discount|% off`), "promotion"},
}

var (
	honorificRe  = regexp.MustCompile(`(Mr|Ms|Mrs|Dr)\.\s+[A-Z][A-Za-z]+`)
	domainRe     = regexp.MustCompile(`[a-zA-Z0-9-]+\.(co\.kr|com|net|org|io|kr|biz)`)
	dateRe       = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)
	digitRunRe   = regexp.MustCompile(`\d{3,}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Extract returns the type pattern for a subject line. It is idempotent:
// Extract(Extract(s)) == Extract(s).
func Extract(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return DefaultPattern
	}

	prefix := ""
	rest := subject
	if m := prefixRe.FindStringSubmatch(subject); m != nil {
		prefix = m[1]
		rest = subject[len(m[0]):]
	}

	for _, rule := range typeRules {
		if rule.re.MatchString(rest) {
			return join(prefix, rule.label)
		}
	}

	cleaned := honorificRe.ReplaceAllString(rest, "*")
	cleaned = domainRe.ReplaceAllString(cleaned, "*")
	cleaned = dateRe.ReplaceAllString(cleaned, "*")
	cleaned = digitRunRe.ReplaceAllString(cleaned, "*")
	cleaned = strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))

	if runes := []rune(cleaned); len(runes) > maxPatternLen {
		cleaned = string(runes[:maxPatternLen]) + "..."
	}

	result := join(prefix, cleaned)
	if result == "" {
		return DefaultPattern
	}
	return result
}

func join(prefix, label string) string {
	if prefix == "" {
		return label
	}
	return strings.TrimSpace(prefix + " " + label)
}
