package core

import (
	"context"
	"sync"
	"time"
)

type fakeJudge struct {
	mu      sync.Mutex
	result  *AnalysisResult
	err     error
	calls   int
	lastRaw string
}

func (f *fakeJudge) AnalyzeEvent(ctx context.Context, event *Event, mutes MuteContext) (*AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastRaw = BuildJudgmentInput(event, mutes, 0)
	if f.err != nil {
		return nil, f.err
	}
	// Copy so callers mutating the result do not affect later calls
	res := *f.result
	return &res, nil
}

func (f *fakeJudge) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSettings struct {
	mu         sync.Mutex
	rules      DynamicFilterRules
	rulesErr   error
	status     *SystemStatus
	usage      *DailyUsage
	calls      int
	costUSD    float64
	inTokens   int
	outTokens  int
	lastBatch  time.Time
	batchCount int
}

func (f *fakeSettings) FilterRules(ctx context.Context) (DynamicFilterRules, error) {
	return f.rules, f.rulesErr
}

func (f *fakeSettings) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	return f.status, nil
}

func (f *fakeSettings) SetSystemEnabled(ctx context.Context, enabled bool, actor, reason string) error {
	return nil
}

func (f *fakeSettings) UpdateLastBatch(ctx context.Context, at time.Time, processed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBatch = at
	f.batchCount = processed
	return nil
}

func (f *fakeSettings) DailyUsage(ctx context.Context) (*DailyUsage, error) {
	return f.usage, nil
}

func (f *fakeSettings) IncrementDailyUsage(ctx context.Context, calls int, costUSD float64, inputTokens, outputTokens int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls += calls
	f.costUSD += costUSD
	f.inTokens += inputTokens
	f.outTokens += outputTokens
	return nil
}

type fakeRouting struct {
	targets   map[string][]Target
	err       error
	mailboxes []string
}

func (f *fakeRouting) TargetsFor(ctx context.Context, address string) ([]Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.targets[address], nil
}

func (f *fakeRouting) MonitoredMailboxes(ctx context.Context) ([]string, error) {
	return f.mailboxes, nil
}

type fakeState struct {
	mu        sync.Mutex
	processed map[string]bool
	throttled map[string]bool
	marked    []string
	lastFetch time.Time
}

func newFakeState() *fakeState {
	return &fakeState{
		processed: make(map[string]bool),
		throttled: make(map[string]bool),
	}
}

func (f *fakeState) IsProcessed(ctx context.Context, messageID, targetID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[messageID+":"+targetID], nil
}

func (f *fakeState) IsDuplicateContent(ctx context.Context, sender, subject, targetID string, window time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.throttled[sender+":"+subject+":"+targetID], nil
}

func (f *fakeState) MarkProcessed(ctx context.Context, messageID, targetID, sender, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[messageID+":"+targetID] = true
	f.throttled[sender+":"+subject+":"+targetID] = true
	f.marked = append(f.marked, messageID+":"+targetID)
	return nil
}

func (f *fakeState) LastFetchedAt(ctx context.Context) (time.Time, error) {
	return f.lastFetch, nil
}

func (f *fakeState) SetLastFetchedAt(ctx context.Context, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFetch = t
	return nil
}

func (f *fakeState) Close() error { return nil }

type fakeLearning struct {
	mu          sync.Mutex
	mutes       map[string][]MutePreference
	snapshots   map[string]*EventSnapshot
	engagements map[string][]EngagementEvent
	priors      map[string]PriorRecord
	senders     []SenderKey
	deleted     []string
}

func newFakeLearning() *fakeLearning {
	return &fakeLearning{
		mutes:       make(map[string][]MutePreference),
		snapshots:   make(map[string]*EventSnapshot),
		engagements: make(map[string][]EngagementEvent),
		priors:      make(map[string]PriorRecord),
	}
}

func (f *fakeLearning) SaveMutePreference(ctx context.Context, pref MutePreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutes[pref.UserID] = append(f.mutes[pref.UserID], pref)
	return nil
}

func (f *fakeLearning) DeleteMutePreference(ctx context.Context, userID, sender, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, userID+"|"+sender+"|"+pattern)
	kept := f.mutes[userID][:0]
	for _, pref := range f.mutes[userID] {
		if pref.Sender != sender || pref.Pattern != pattern {
			kept = append(kept, pref)
		}
	}
	f.mutes[userID] = kept
	return nil
}

func (f *fakeLearning) MutePreferences(ctx context.Context, userID string) ([]MutePreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutes[userID], nil
}

func (f *fakeLearning) SaveSnapshot(ctx context.Context, snap *EventSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.EmailID] = snap
	return nil
}

func (f *fakeLearning) Snapshot(ctx context.Context, emailID string) (*EventSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[emailID], nil
}

func (f *fakeLearning) UpdateSnapshotCategory(ctx context.Context, emailID string, category Category, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snap, ok := f.snapshots[emailID]; ok {
		snap.Category = category
		snap.Reason = reason
	}
	return nil
}

func (f *fakeLearning) LogEngagement(ctx context.Context, ev EngagementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engagements[ev.EmailID] = append(f.engagements[ev.EmailID], ev)
	return nil
}

func (f *fakeLearning) EngagementForEmail(ctx context.Context, emailID string, since time.Time) ([]EngagementEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engagements[emailID], nil
}

func (f *fakeLearning) ActiveSenders(ctx context.Context, since time.Time, limit int) ([]SenderKey, error) {
	return f.senders, nil
}

func (f *fakeLearning) SnapshotsFrom(ctx context.Context, fromEmail string, since time.Time) ([]EventSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EventSnapshot
	for _, snap := range f.snapshots {
		if snap.FromEmail == fromEmail {
			out = append(out, *snap)
		}
	}
	return out, nil
}

func (f *fakeLearning) UpsertPrior(ctx context.Context, rec PriorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priors[rec.KeyType+":"+rec.KeyValue] = rec
	return nil
}

func (f *fakeLearning) Prior(ctx context.Context, sender, domain string, minSamples int) (*PriorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.priors["sender:"+sender]; ok && rec.Samples >= minSamples {
		return &rec, nil
	}
	if rec, ok := f.priors["domain:"+domain]; ok && rec.Samples >= minSamples {
		return &rec, nil
	}
	return nil, nil
}

type fakeSource struct {
	mu     sync.Mutex
	events []Event
	err    error
	read   []string
}

func (f *fakeSource) FetchUnread(ctx context.Context, mailboxes []string) ([]Event, error) {
	return f.events, f.err
}

func (f *fakeSource) MarkRead(ctx context.Context, messageID, mailbox string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, messageID+"@"+mailbox)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, target Target, event *Event, analysis *AnalysisResult) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event.MessageID+"->"+target.String())
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
