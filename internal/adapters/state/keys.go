// Package state implements the dedup/throttle StateStore over several
// backends. Both keyspaces use short content hashes as keys so the same
// (message, target) or (sender, subject, target) pair always maps to the
// same row regardless of backend.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// processedKey hashes a (message, target) delivery marker
func processedKey(messageID, targetID string) string {
	return shortHash(messageID + ":" + targetID)
}

// throttleKey hashes a (sender, subject, target) content marker. The
// subject is lowercased and stripped of all whitespace so cosmetic
// variations of the same mail still collide.
func throttleKey(sender, subject, targetID string) string {
	return shortHash(sender + ":" + normalizeSubject(subject) + ":" + targetID)
}

func normalizeSubject(subject string) string {
	return strings.Join(strings.Fields(strings.ToLower(subject)), "")
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:32]
}
