package core

import (
	"fmt"
	"strings"
	"time"
)

// Category is the final disposition of a mail event
type Category string

const (
	// CategoryNotify means the event should be delivered to its targets
	CategoryNotify Category = "notify"
	// CategorySilent means the event is suppressed
	CategorySilent Category = "silent"
)

// ParseCategory normalizes a category string from an external source.
// Unknown values resolve to silent.
func ParseCategory(s string) Category {
	if strings.EqualFold(strings.TrimSpace(s), string(CategoryNotify)) {
		return CategoryNotify
	}
	return CategorySilent
}

// Source indicates which stage produced an analysis result
type Source string

const (
	// SourceRule means a deterministic rule decided without the judgment service
	SourceRule Source = "rule"
	// SourceLLM means the judgment service decided
	SourceLLM Source = "llm"
)

// TargetType distinguishes direct-message and channel targets
type TargetType string

const (
	TargetUser    TargetType = "user"
	TargetChannel TargetType = "channel"
)

// Target is a notification destination
type Target struct {
	ID   string
	Type TargetType
}

// ParseTarget parses a "user:<id>" or "channel:<id>" target spec
func ParseTarget(spec string) (Target, error) {
	kind, id, ok := strings.Cut(spec, ":")
	if !ok || id == "" {
		return Target{}, fmt.Errorf("malformed target spec %q", spec)
	}
	switch TargetType(kind) {
	case TargetUser, TargetChannel:
		return Target{ID: id, Type: TargetType(kind)}, nil
	default:
		return Target{}, fmt.Errorf("unknown target type %q in %q", kind, spec)
	}
}

// String returns the canonical "type:id" form
func (t Target) String() string {
	return string(t.Type) + ":" + t.ID
}

// Event represents one mail event to triage
type Event struct {
	Timestamp  time.Time
	MessageID  string
	Subject    string
	Sender     string
	Recipients []string
	Owner      string
	EventType  string
	Raw        map[string]string
}

// SenderDomain returns the domain part of the sender address, lowercased
func (e *Event) SenderDomain() string {
	if _, domain, ok := strings.Cut(e.Sender, "@"); ok {
		return strings.ToLower(domain)
	}
	return ""
}

// TokenUsage records the judgment service's token consumption for one call
type TokenUsage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// AnalysisResult is the outcome of classifying one event
type AnalysisResult struct {
	Score    float64
	Category Category
	Reason   string
	Summary  string
	Source   Source
	// Overrides maps a user id to a per-user category that supersedes
	// the event-level category for that user's targets.
	Overrides map[string]Category
	Usage     *TokenUsage
}

// MutePreference records a user's wish to silence a (sender, pattern) pair.
// An empty Pattern means the preference predates pattern extraction and
// matches on sender alone.
type MutePreference struct {
	UserID          string
	Sender          string
	Pattern         string
	OriginalSubject string
	CreatedAt       time.Time
}

// MuteContext carries each user's mute preferences into classification
// so the judgment service can see what the user already silenced.
type MuteContext map[string][]MutePreference

// Engagement event types
const (
	EngagementRead  = "gmail_read"
	EngagementClick = "slack_click_open"
)

// EngagementEvent is one observed user interaction with a notified mail
type EngagementEvent struct {
	EmailID    string
	UserEmail  string
	Type       string
	Timestamp  time.Time
	LatencySec float64
}

// PriorRecord is a learned engagement prior for a sender or domain
type PriorRecord struct {
	KeyType   string
	KeyValue  string
	Prior     float64
	Samples   int
	UpdatedAt time.Time
}

// SenderKey identifies a sender for prior updates
type SenderKey struct {
	Email  string
	Domain string
}

// EventSnapshot is the persisted record of one triaged event, reused on
// re-encounter to avoid repeated judgment calls.
type EventSnapshot struct {
	EmailID      string
	Subject      string
	FromEmail    string
	FromDomain   string
	ToEmail      string
	Timestamp    time.Time
	Score        float64
	Category     Category
	Reason       string
	Summary      string
	Source       Source
	Targets      []string
	PriorSource  string
	PriorValue   *float64
	InputTokens  int
	OutputTokens int
	NotifiedAt   time.Time
	CreatedAt    time.Time
}

// SystemStatus is the operator-controlled run state and daily ceilings
type SystemStatus struct {
	Enabled           bool
	PausedAt          time.Time
	PausedBy          string
	PauseReason       string
	DailyLimitCalls   int
	DailyLimitCostUSD float64
	LastBatchAt       time.Time
	LastBatchCount    int
}

// DailyUsage is the accumulated judgment usage for one calendar day
type DailyUsage struct {
	Date         string
	Calls        int
	CostUSD      float64
	InputTokens  int
	OutputTokens int
}

// FilterRules are the deterministic classification rules plus the
// notify threshold applied to judgment scores
type FilterRules struct {
	BlacklistDomains []string
	WhitelistDomains []string
	SpamKeywords     []string
	NotifyThreshold  float64
}

// DynamicFilterRules mirrors FilterRules with presence-tracking fields,
// so stored settings override static config only for keys they set
type DynamicFilterRules struct {
	BlacklistDomains []string `bson:"blacklist_domains,omitempty"`
	WhitelistDomains []string `bson:"whitelist_domains,omitempty"`
	SpamKeywords     []string `bson:"spam_keywords,omitempty"`
	NotifyThreshold  *float64 `bson:"notify_threshold,omitempty"`
}

// Merge overlays the dynamic rules onto the static ones, per key
func (d DynamicFilterRules) Merge(static FilterRules) FilterRules {
	merged := static
	if d.BlacklistDomains != nil {
		merged.BlacklistDomains = d.BlacklistDomains
	}
	if d.WhitelistDomains != nil {
		merged.WhitelistDomains = d.WhitelistDomains
	}
	if d.SpamKeywords != nil {
		merged.SpamKeywords = d.SpamKeywords
	}
	if d.NotifyThreshold != nil {
		merged.NotifyThreshold = *d.NotifyThreshold
	}
	return merged
}

// ProcessedResult is the per-event outcome of a batch run
type ProcessedResult struct {
	Event    *Event
	Analysis *AnalysisResult
	Targets  []Target
	Sent     int
	Err      error
}

// BatchSummary is the aggregate outcome of one batch run
type BatchSummary struct {
	Status    string
	Reason    string
	Processed int
	Sent      int
	Ignored   int
}
