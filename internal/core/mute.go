package core

import (
	"strings"

	"github.com/seokwon/mail-sentry/internal/pattern"
)

// ShouldSilence reports whether any of a user's mute preferences matches
// the current mail. Matching is rule-based, independent of the judgment
// service:
//   - the sender must match exactly (case-insensitive);
//   - an empty stored pattern silences on sender alone (legacy entries);
//   - otherwise the stored pattern must equal the current mail's type
//     pattern, or share at least 3 keywords with it.
func ShouldSilence(prefs []MutePreference, sender, subject string) bool {
	if len(prefs) == 0 {
		return false
	}

	currentSender := strings.ToLower(strings.TrimSpace(sender))
	currentPattern := pattern.Extract(subject)

	for _, pref := range prefs {
		if strings.ToLower(strings.TrimSpace(pref.Sender)) != currentSender {
			continue
		}
		if pref.Pattern == "" {
			return true
		}
		if pref.Pattern == currentPattern {
			return true
		}
		if keywordOverlap(pref.Pattern, currentPattern) >= 3 {
			return true
		}
	}
	return false
}

// keywordOverlap counts shared whitespace-separated tokens between two
// patterns, ignoring brackets so "[NHN Domain] domain expiry notice" and
// "domain expiry notice" still overlap.
func keywordOverlap(a, b string) int {
	tokensA := patternTokens(a)
	tokensB := patternTokens(b)
	count := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			count++
		}
	}
	return count
}

func patternTokens(p string) map[string]struct{} {
	p = strings.ReplaceAll(p, "[", "")
	p = strings.ReplaceAll(p, "]", "")
	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(p) {
		tokens[token] = struct{}{}
	}
	return tokens
}
