package core

import (
	"context"
	"time"
)

// JudgmentClient scores an event with an external LLM service
type JudgmentClient interface {
	// AnalyzeEvent returns the model's triage verdict for the event.
	// Mute context is passed so the model can account for what each
	// user has already silenced.
	AnalyzeEvent(ctx context.Context, event *Event, mutes MuteContext) (*AnalysisResult, error)
}

// StateStore tracks delivery state for dedup and content throttling
type StateStore interface {
	// IsProcessed reports whether (message, target) was already delivered
	IsProcessed(ctx context.Context, messageID, targetID string) (bool, error)
	// IsDuplicateContent reports whether the same (sender, subject) was
	// delivered to the target within the window
	IsDuplicateContent(ctx context.Context, sender, subject, targetID string, window time.Duration) (bool, error)
	// MarkProcessed records a delivery in both keyspaces
	MarkProcessed(ctx context.Context, messageID, targetID, sender, subject string) error
	// LastFetchedAt returns the high-water mark of the previous batch fetch
	LastFetchedAt(ctx context.Context) (time.Time, error)
	// SetLastFetchedAt advances the batch fetch high-water mark
	SetLastFetchedAt(ctx context.Context, t time.Time) error
	// Close releases store resources
	Close() error
}

// LearningStore persists snapshots, engagement signals, priors and mute
// preferences. Implementations degrade to no-ops when unconfigured.
type LearningStore interface {
	SaveMutePreference(ctx context.Context, pref MutePreference) error
	DeleteMutePreference(ctx context.Context, userID, sender, pattern string) error
	MutePreferences(ctx context.Context, userID string) ([]MutePreference, error)

	SaveSnapshot(ctx context.Context, snap *EventSnapshot) error
	Snapshot(ctx context.Context, emailID string) (*EventSnapshot, error)
	UpdateSnapshotCategory(ctx context.Context, emailID string, category Category, reason string) error

	LogEngagement(ctx context.Context, ev EngagementEvent) error
	EngagementForEmail(ctx context.Context, emailID string, since time.Time) ([]EngagementEvent, error)

	// ActiveSenders lists senders with snapshots newer than since,
	// bounded by limit, for the prior update sweep
	ActiveSenders(ctx context.Context, since time.Time, limit int) ([]SenderKey, error)
	// SnapshotsFrom lists a sender's snapshots newer than since
	SnapshotsFrom(ctx context.Context, fromEmail string, since time.Time) ([]EventSnapshot, error)
	UpsertPrior(ctx context.Context, rec PriorRecord) error
	// Prior returns the best available prior for the sender, preferring
	// the sender-level record over the domain-level one. Records below
	// minSamples are skipped. Returns nil when nothing qualifies.
	Prior(ctx context.Context, sender, domain string, minSamples int) (*PriorRecord, error)
}

// SettingsStore serves operator-controlled runtime settings
type SettingsStore interface {
	// FilterRules returns the dynamic rule overrides, zero-valued when unset
	FilterRules(ctx context.Context) (DynamicFilterRules, error)
	SystemStatus(ctx context.Context) (*SystemStatus, error)
	SetSystemEnabled(ctx context.Context, enabled bool, actor, reason string) error
	UpdateLastBatch(ctx context.Context, at time.Time, processed int) error
	DailyUsage(ctx context.Context) (*DailyUsage, error)
	// IncrementDailyUsage atomically adds to today's usage counters
	IncrementDailyUsage(ctx context.Context, calls int, costUSD float64, inputTokens, outputTokens int) error
}

// RoutingStore resolves mailbox addresses to notification targets
type RoutingStore interface {
	TargetsFor(ctx context.Context, address string) ([]Target, error)
	// MonitoredMailboxes lists every mailbox any enabled rule watches
	MonitoredMailboxes(ctx context.Context) ([]string, error)
}

// MailSource fetches mail events from the provider
type MailSource interface {
	FetchUnread(ctx context.Context, mailboxes []string) ([]Event, error)
	MarkRead(ctx context.Context, messageID, mailbox string) error
}

// Notifier delivers a triaged event to one target
type Notifier interface {
	Send(ctx context.Context, target Target, event *Event, analysis *AnalysisResult) error
}
