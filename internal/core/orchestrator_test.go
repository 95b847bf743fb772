package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orchFixture struct {
	judge    *fakeJudge
	settings *fakeSettings
	routing  *fakeRouting
	state    *fakeState
	learning *fakeLearning
	source   *fakeSource
	notifier *fakeNotifier
	orch     *Orchestrator
}

func newOrchFixture(judgeResult *AnalysisResult) *orchFixture {
	f := &orchFixture{
		judge:    &fakeJudge{result: judgeResult},
		settings: &fakeSettings{},
		routing: &fakeRouting{
			targets: map[string][]Target{
				"owner@corp.com": {{ID: "U1", Type: TargetUser}},
			},
			mailboxes: []string{"owner@corp.com"},
		},
		state:    newFakeState(),
		learning: newFakeLearning(),
		source:   &fakeSource{},
		notifier: &fakeNotifier{},
	}

	logger := zap.NewNop()
	classifier := NewClassifier(f.judge, f.settings, testRules(), logger)
	router := NewRouter(f.routing, nil, logger)
	governor := NewGovernor(f.settings, logger)

	f.orch = NewOrchestrator(classifier, router, governor, f.state, f.learning,
		f.settings, f.routing, f.source, f.notifier,
		OrchestratorConfig{
			MaxWorkers:        4,
			ThrottleWindow:    10 * time.Minute,
			CostInputPerMTok:  0.80,
			CostOutputPerMTok: 4.00,
			PriorMinSamples:   3,
		}, logger)
	return f
}

func notifyVerdict() *AnalysisResult {
	return &AnalysisResult{
		Score:    0.8,
		Category: CategoryNotify,
		Reason:   "human communication",
		Summary:  "• wants a reply",
		Source:   SourceLLM,
		Usage:    &TokenUsage{InputTokens: 1000, OutputTokens: 100},
	}
}

func testEvent(id string) Event {
	return Event{
		Timestamp:  time.Now().UTC(),
		MessageID:  id,
		Subject:    "Question about the contract",
		Sender:     "alice@client.com",
		Recipients: []string{"owner@corp.com"},
		Owner:      "owner@corp.com",
		EventType:  "UNREAD",
	}
}

func TestRunBatchSendsNotifyMail(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "success", summary.Status)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 0, summary.Ignored)
	assert.Equal(t, []string{"m1->user:U1"}, f.notifier.sent)

	// Snapshot saved with usage and the prior source recorded
	snap := f.learning.snapshots["m1"]
	require.NotNil(t, snap)
	assert.Equal(t, CategoryNotify, snap.Category)
	assert.Equal(t, 1000, snap.InputTokens)
	assert.Equal(t, "none", snap.PriorSource)

	// Daily usage incremented with the token cost
	assert.Equal(t, 1, f.settings.calls)
	assert.InDelta(t, (1000*0.80+100*4.00)/1e6, f.settings.costUSD, 1e-12)

	// Batch metadata updated
	assert.Equal(t, 1, f.settings.batchCount)
	assert.False(t, f.state.lastFetch.IsZero())
}

func TestRunBatchSilentMailNotSent(t *testing.T) {
	f := newOrchFixture(&AnalysisResult{Score: 0.1, Category: CategorySilent, Reason: "digest", Source: SourceLLM})
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Ignored)
	assert.Zero(t, f.notifier.sentCount())

	// Silent outcomes still get a snapshot
	assert.NotNil(t, f.learning.snapshots["m1"])
}

func TestRunBatchSkippedByGovernor(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.settings.status = &SystemStatus{Enabled: false, PauseReason: "paused for audit"}
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "skipped", summary.Status)
	assert.Equal(t, "paused for audit", summary.Reason)
	assert.Zero(t, f.judge.callCount())
	assert.Zero(t, f.notifier.sentCount())
}

func TestRunBatchIsIdempotent(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.source.events = []Event{testEvent("m1")}

	_, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Sent, "second run must not redeliver")
	assert.Equal(t, 1, f.notifier.sentCount())
	assert.Equal(t, 1, f.judge.callCount(), "snapshot reuse must skip the judgment call")
}

func TestProcessEventThrottlesDuplicateContent(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	first := testEvent("m1")
	second := testEvent("m2") // different message id, same sender+subject
	f.source.events = []Event{first}

	_, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	f.source.events = []Event{second}
	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Sent, "same content within the window is throttled")
	assert.Equal(t, 1, f.notifier.sentCount())
}

func TestProcessEventMutePreferenceSilencesUser(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.learning.mutes["U1"] = []MutePreference{{
		UserID:  "U1",
		Sender:  "alice@client.com",
		Pattern: "", // legacy sender-only mute
	}}
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Sent)
	assert.Zero(t, f.notifier.sentCount())
}

func TestProcessEventModelOverrideSilencesUser(t *testing.T) {
	verdict := notifyVerdict()
	verdict.Overrides = map[string]Category{"U1": CategorySilent}
	f := newOrchFixture(verdict)
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Sent)
}

func TestProcessEventOverrideNotifiesDespiteSilentCategory(t *testing.T) {
	f := newOrchFixture(&AnalysisResult{
		Score:     0.2,
		Category:  CategorySilent,
		Reason:    "routine",
		Source:    SourceLLM,
		Overrides: map[string]Category{"U1": CategoryNotify},
	})
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sent)
}

func TestProcessEventNoTargets(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.routing.targets = map[string][]Target{}
	f.routing.mailboxes = []string{"owner@corp.com"}
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Sent)
	assert.Zero(t, f.judge.callCount(), "untargeted mail must not reach the judgment service")
}

func TestProcessEventFailedSendLeavesStateUnmarked(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.notifier.err = assert.AnError
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)

	processed, err := f.state.IsProcessed(context.Background(), "m1", "U1")
	require.NoError(t, err)
	assert.False(t, processed, "failed sends must stay unmarked for the next batch")
}

func TestDryRunMarksWithoutSending(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.orch.cfg.DryRun = true
	f.source.events = []Event{testEvent("m1")}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sent)
	assert.Zero(t, f.notifier.sentCount())

	processed, _ := f.state.IsProcessed(context.Background(), "m1", "U1")
	assert.True(t, processed)
}

func TestTriggerNotification(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.learning.snapshots["m1"] = &EventSnapshot{
		EmailID:   "m1",
		Subject:   "Weekly metrics",
		FromEmail: "reports@corp.com",
		ToEmail:   "owner@corp.com",
		Category:  CategorySilent,
		Reason:    "routine",
		Summary:   "• numbers are flat",
		Targets:   []string{"U1"},
	}
	f.learning.mutes["U1"] = []MutePreference{{
		UserID: "U1", Sender: "reports@corp.com", Pattern: "Weekly metrics",
	}}

	err := f.orch.TriggerNotification(context.Background(), "m1", nil, true)
	require.NoError(t, err)

	assert.Equal(t, 1, f.notifier.sentCount())
	assert.Equal(t, CategoryNotify, f.learning.snapshots["m1"].Category)
	assert.Empty(t, f.learning.mutes["U1"], "learn must remove the matching mute")

	processed, _ := f.state.IsProcessed(context.Background(), "m1", "U1")
	assert.True(t, processed)
}

func TestTriggerNotificationUnknownEmail(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	err := f.orch.TriggerNotification(context.Background(), "missing", nil, false)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestBlockNotification(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.learning.snapshots["m1"] = &EventSnapshot{
		EmailID:   "m1",
		Subject:   "[Greeting] Min Lee applied for Data Engineer",
		FromEmail: "jobs@greeting.io",
		Category:  CategoryNotify,
		Targets:   []string{"U1", "C9"},
	}

	err := f.orch.BlockNotification(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, CategorySilent, f.learning.snapshots["m1"].Category)
	require.Len(t, f.learning.mutes["U1"], 1, "only user targets get mute entries")
	assert.Equal(t, "jobs@greeting.io", f.learning.mutes["U1"][0].Sender)
	assert.Equal(t, "[Greeting] job application notice", f.learning.mutes["U1"][0].Pattern)
}

func TestRecordRead(t *testing.T) {
	f := newOrchFixture(notifyVerdict())
	f.learning.snapshots["m1"] = &EventSnapshot{
		EmailID:    "m1",
		NotifiedAt: time.Now().UTC().Add(-5 * time.Minute),
	}

	err := f.orch.RecordRead(context.Background(), "m1", "owner@corp.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"m1@owner@corp.com"}, f.source.read)
	events := f.learning.engagements["m1"]
	require.Len(t, events, 1)
	assert.Equal(t, EngagementRead, events[0].Type)
	assert.InDelta(t, 300, events[0].LatencySec, 5)
}

func TestRecordClick(t *testing.T) {
	f := newOrchFixture(notifyVerdict())

	err := f.orch.RecordClick(context.Background(), "m1", "U1")
	require.NoError(t, err)

	events := f.learning.engagements["m1"]
	require.Len(t, events, 1)
	assert.Equal(t, EngagementClick, events[0].Type)
}

func TestMuteAndUnmute(t *testing.T) {
	f := newOrchFixture(notifyVerdict())

	err := f.orch.Mute(context.Background(), "U1", "news@digest.io", "Daily report for 2024-05-01")
	require.NoError(t, err)
	require.Len(t, f.learning.mutes["U1"], 1)
	assert.Equal(t, "daily report", f.learning.mutes["U1"][0].Pattern)

	err = f.orch.Unmute(context.Background(), "U1", "news@digest.io", "Daily report for 2024-06-02")
	require.NoError(t, err)
	assert.Empty(t, f.learning.mutes["U1"], "unmute with an equivalent subject removes the entry")
}
