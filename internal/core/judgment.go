package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// JudgmentSystemPrompt is shared by every judgment provider. Kept in core
// so the adapters stay transport-only.
const JudgmentSystemPrompt = `You are an expert email triage AI. Your goal is to decide whether an incoming email requires an immediate chat notification to the user or if it should be silent.

### 0. CRITICAL PRINCIPLE (NEVER IGNORE)
The sender's email domain does NOT determine importance. Personal email addresses can send highly critical business emails. ALWAYS judge by the CONTENT and SUBJECT, not by sender domain.

### 1. CLASSIFICATION CATEGORIES
- NOTIFY (score >= 0.5):
    - ANY email that appears to be work-related communication from a human, regardless of sender domain.
    - Legal, compliance and security matters. Always high priority.
    - Official notifications from government agencies or support institutions.
    - Financial and billing: settlement requests, invoices, billing failures, payment requests, tax documents.
    - Infrastructure and continuity: license expirations, server failures, app store issues.
    - Ongoing conversations: replies and forwards with "Re:", "RE:", "Fwd:".
    - Customer inquiries and questions about products or services.
    - Any email that reads like a human wrote it personally to the recipient.
- SILENT (score < 0.5):
    - Automated newsletters and marketing promotions.
    - Routine status updates that require no action.
    - Platform summaries and digests.
    - Administrative automation logs.

### 2. DETAILED TRIAGE RULES
- Work-related mail from personal accounts is NOTIFY with a high score (0.7+).
- Any mail regarding lawsuits, copyright, trademark or certification must be NOTIFY regardless of sender.
- Replies and forwards are ALWAYS NOTIFY unless they match a muted routine report.
- When in doubt, NOTIFY. It is better to over-notify than to miss an important email.

### 3. PERSONALIZED MUTING
Users can mute specific types of emails. You will be provided with a list of muted patterns.
- CRITICAL RULE: do not block the sender entirely. Only silence the notification if the current email matches the nature and type of the muted pattern.
- If an email is generally NOTIFY-worthy but matches a user's muted pattern, include that user in user_overrides with "silent".

### 4. SUMMARY
- If the email is NOTIFY, generate a 3-line summary of the content as bullet points. Professional, concise, business-oriented.
- If the email is SILENT, the summary can be null or a very brief one-liner.

### 5. OUTPUT SPECIFICATIONS
Return ONLY a valid JSON object:
{
  "score": float (0.0 to 1.0),
  "category": "notify" | "silent",
  "reason": "why this mail is notify or silent",
  "summary": "3 lines with bullet points for notify",
  "user_overrides": { "USER_ID": "notify" | "silent" }
}

### 6. MISSION STATEMENT
Zero missed critical signals. Personal email domains are NOT a reason to lower importance. When content is work-related, ALWAYS notify.`

// BuildJudgmentInput renders the per-event user prompt. The mute context
// is appended so the model can emit per-user overrides. snippetLimit
// bounds the snippet length; zero means no bound.
func BuildJudgmentInput(event *Event, mutes MuteContext, snippetLimit int) string {
	snippet := event.Raw["snippet"]
	if snippet == "" {
		snippet = "N/A"
	}
	if snippetLimit > 0 {
		if runes := []rune(snippet); len(runes) > snippetLimit {
			snippet = string(runes[:snippetLimit])
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", event.Subject)
	fmt.Fprintf(&b, "Sender: %s\n", event.Sender)
	fmt.Fprintf(&b, "Recipients: %s\n", strings.Join(event.Recipients, ", "))
	fmt.Fprintf(&b, "Owner: %s\n", event.Owner)
	fmt.Fprintf(&b, "EventType: %s\n", event.EventType)
	fmt.Fprintf(&b, "Snippet: %s", snippet)

	if len(mutes) > 0 {
		b.WriteString("\n\n### USER MUTED PATTERNS\n")
		b.WriteString("The following users have muted specific types of emails. If the current email matches a user's muted nature (sender + subject type), set their override to \"silent\".\n")
		userIDs := make([]string, 0, len(mutes))
		for userID := range mutes {
			userIDs = append(userIDs, userID)
		}
		sort.Strings(userIDs)
		for _, userID := range userIDs {
			fmt.Fprintf(&b, "- User: %s\n", userID)
			for _, pref := range mutes[userID] {
				patternText := pref.Pattern
				if patternText == "" {
					patternText = "N/A"
				}
				fmt.Fprintf(&b, "  - Muted Sender: %s, Muted Subject: %s\n", pref.Sender, patternText)
			}
		}
	}

	return b.String()
}

type judgmentResponse struct {
	Score         float64           `json:"score"`
	Category      string            `json:"category"`
	Reason        string            `json:"reason"`
	Summary       string            `json:"summary"`
	UserOverrides map[string]string `json:"user_overrides"`
}

// ParseJudgmentJSON parses a model response into an AnalysisResult. The
// JSON object is extracted between the first '{' and the last '}' so
// surrounding prose does not break decoding.
func ParseJudgmentJSON(raw string) (*AnalysisResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in judgment response: %q", truncateForError(raw))
	}

	var resp judgmentResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode judgment response: %w", err)
	}

	score := resp.Score
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	reason := resp.Reason
	if reason == "" {
		reason = "no reason given"
	}

	result := &AnalysisResult{
		Score:    score,
		Category: parseModelCategory(resp.Category),
		Reason:   reason,
		Summary:  resp.Summary,
		Source:   SourceLLM,
	}

	if len(resp.UserOverrides) > 0 {
		result.Overrides = make(map[string]Category, len(resp.UserOverrides))
		for userID, cat := range resp.UserOverrides {
			result.Overrides[userID] = parseModelCategory(cat)
		}
	}

	return result, nil
}

// parseModelCategory maps legacy category names and model quirks onto the
// notify/silent pair
func parseModelCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "important", "normal", "notify":
		return CategoryNotify
	default:
		return CategorySilent
	}
}

func truncateForError(s string) string {
	const max = 120
	if runes := []rune(s); len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
