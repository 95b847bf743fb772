package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seokwon/mail-sentry/internal/pattern"
	"go.uber.org/zap"
)

// ErrSnapshotNotFound is returned by manual operations that reference an
// email id with no stored snapshot
var ErrSnapshotNotFound = errors.New("no snapshot for email id")

// OrchestratorConfig tunes the batch pipeline
type OrchestratorConfig struct {
	MaxWorkers        int
	ThrottleWindow    time.Duration
	DryRun            bool
	CostInputPerMTok  float64
	CostOutputPerMTok float64
	PriorMinSamples   int
	StaticMailboxes   []string
}

// Orchestrator drives the fetch→classify→route→deliver pipeline and the
// manual override operations
type Orchestrator struct {
	classifier *Classifier
	router     *Router
	governor   *Governor
	state      StateStore
	learning   LearningStore
	settings   SettingsStore
	routing    RoutingStore
	source     MailSource
	notifier   Notifier
	logger     *zap.Logger
	cfg        OrchestratorConfig
}

// NewOrchestrator wires the pipeline
func NewOrchestrator(
	classifier *Classifier,
	router *Router,
	governor *Governor,
	state StateStore,
	learning LearningStore,
	settings SettingsStore,
	routing RoutingStore,
	source MailSource,
	notifier Notifier,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 15
	}
	return &Orchestrator{
		classifier: classifier,
		router:     router,
		governor:   governor,
		state:      state,
		learning:   learning,
		settings:   settings,
		routing:    routing,
		source:     source,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// RunBatch fetches unread mail for every monitored mailbox and processes
// each event concurrently. The governor can veto the whole run.
func (o *Orchestrator) RunBatch(ctx context.Context) (*BatchSummary, error) {
	batchID := uuid.New().String()
	log := o.logger.With(zap.String("batch_id", batchID))

	if enabled, reason := o.governor.IsEnabled(ctx); !enabled {
		log.Warn("Batch skipped by governor", zap.String("reason", reason))
		return &BatchSummary{Status: "skipped", Reason: reason}, nil
	}

	mailboxes, err := o.routing.MonitoredMailboxes(ctx)
	if err != nil || len(mailboxes) == 0 {
		if err != nil {
			log.Warn("Failed to list monitored mailboxes, using static config", zap.Error(err))
		}
		mailboxes = o.cfg.StaticMailboxes
	}
	if len(mailboxes) == 0 {
		return &BatchSummary{Status: "success"}, nil
	}

	events, err := o.source.FetchUnread(ctx, mailboxes)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unread mail: %w", err)
	}
	log.Info("Fetched unread mail",
		zap.Int("events", len(events)),
		zap.Int("mailboxes", len(mailboxes)))

	results := o.processAll(ctx, events, log)

	summary := &BatchSummary{Status: "success", Processed: len(results)}
	for _, res := range results {
		if res.Sent > 0 {
			summary.Sent++
		}
		if res.Analysis != nil && res.Analysis.Category == CategorySilent {
			summary.Ignored++
		}
	}

	if err := o.settings.UpdateLastBatch(ctx, time.Now().UTC(), summary.Processed); err != nil {
		log.Warn("Failed to record batch metadata", zap.Error(err))
	}
	if err := o.state.SetLastFetchedAt(ctx, time.Now().UTC()); err != nil {
		log.Warn("Failed to record fetch high-water mark", zap.Error(err))
	}

	log.Info("Batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("sent", summary.Sent),
		zap.Int("ignored", summary.Ignored))
	return summary, nil
}

// processAll runs events through a semaphore-bounded worker pool
func (o *Orchestrator) processAll(ctx context.Context, events []Event, log *zap.Logger) []*ProcessedResult {
	if len(events) == 0 {
		return nil
	}

	workers := o.cfg.MaxWorkers
	if len(events) < workers {
		workers = len(events)
	}
	sem := make(chan struct{}, workers)

	results := make([]*ProcessedResult, len(events))
	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					log.Error("Panic while processing event",
						zap.String("message_id", events[idx].MessageID),
						zap.Any("panic", r))
					results[idx] = &ProcessedResult{Event: &events[idx], Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			results[idx] = o.processEvent(ctx, &events[idx])
		}(i)
	}
	wg.Wait()

	out := make([]*ProcessedResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

// processEvent triages a single event end to end
func (o *Orchestrator) processEvent(ctx context.Context, event *Event) *ProcessedResult {
	log := o.logger.With(zap.String("message_id", event.MessageID))

	targets := o.router.Resolve(ctx, event)
	if len(targets) == 0 {
		return &ProcessedResult{
			Event: event,
			Analysis: &AnalysisResult{
				Category: CategorySilent,
				Reason:   "no notification targets",
				Source:   SourceRule,
			},
		}
	}

	// Snapshot reuse: a previously triaged mail skips the judgment call
	var analysis *AnalysisResult
	cached := false
	if snap, err := o.learning.Snapshot(ctx, event.MessageID); err != nil {
		log.Warn("Snapshot lookup failed", zap.Error(err))
	} else if snap != nil {
		cached = true
		analysis = &AnalysisResult{
			Score:    snap.Score,
			Category: snap.Category,
			Reason:   snap.Reason,
			Summary:  snap.Summary,
			Source:   SourceRule,
		}
		log.Info("Reusing cached analysis, judgment call skipped")
	}

	if analysis == nil {
		mutes := o.muteContext(ctx, targets)
		analysis = o.classifier.Classify(ctx, event, mutes)
	}

	finalTargets := o.filterTargets(ctx, targets, event, analysis, log)

	if !cached {
		o.saveSnapshot(ctx, event, analysis, finalTargets, targets, log)
		o.recordUsage(ctx, analysis.Usage, log)
	}

	if len(finalTargets) == 0 {
		return &ProcessedResult{Event: event, Analysis: analysis, Targets: nil}
	}

	newTargets := o.dedupTargets(ctx, event, finalTargets, log)
	if len(newTargets) == 0 {
		return &ProcessedResult{Event: event, Analysis: analysis, Targets: finalTargets}
	}

	sent := o.deliver(ctx, event, analysis, newTargets, log)
	return &ProcessedResult{Event: event, Analysis: analysis, Targets: newTargets, Sent: sent}
}

// muteContext gathers mute preferences for every user target
func (o *Orchestrator) muteContext(ctx context.Context, targets []Target) MuteContext {
	mutes := make(MuteContext)
	for _, target := range targets {
		if target.Type != TargetUser {
			continue
		}
		prefs, err := o.learning.MutePreferences(ctx, target.ID)
		if err != nil {
			o.logger.Warn("Failed to load mute preferences",
				zap.String("user_id", target.ID),
				zap.Error(err))
			continue
		}
		if len(prefs) > 0 {
			mutes[target.ID] = prefs
		}
	}
	if len(mutes) == 0 {
		return nil
	}
	return mutes
}

// filterTargets drops targets per (in priority order) the user's stored
// mute preferences, the model's per-user overrides, and the event-level
// category
func (o *Orchestrator) filterTargets(ctx context.Context, targets []Target, event *Event, analysis *AnalysisResult, log *zap.Logger) []Target {
	var final []Target
	for _, target := range targets {
		if target.Type == TargetUser {
			prefs, err := o.learning.MutePreferences(ctx, target.ID)
			if err == nil && ShouldSilence(prefs, event.Sender, event.Subject) {
				log.Info("Target silenced by mute preference", zap.String("target", target.String()))
				continue
			}
		}

		if override, ok := analysis.Overrides[target.ID]; ok {
			if override == CategoryNotify {
				final = append(final, target)
			}
			continue
		}

		if analysis.Category == CategoryNotify {
			final = append(final, target)
		}
	}
	return final
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, event *Event, analysis *AnalysisResult, finalTargets, allTargets []Target, log *zap.Logger) {
	targets := finalTargets
	if len(targets) == 0 {
		targets = allTargets
	}
	targetIDs := make([]string, len(targets))
	for i, t := range targets {
		targetIDs[i] = t.ID
	}

	snap := &EventSnapshot{
		EmailID:    event.MessageID,
		Subject:    event.Subject,
		FromEmail:  event.Sender,
		FromDomain: event.SenderDomain(),
		ToEmail:    event.Owner,
		Timestamp:  event.Timestamp,
		Score:      analysis.Score,
		Category:   analysis.Category,
		Reason:     analysis.Reason,
		Summary:    analysis.Summary,
		Source:     analysis.Source,
		Targets:    targetIDs,
		NotifiedAt: time.Now().UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if analysis.Usage != nil {
		snap.InputTokens = analysis.Usage.InputTokens
		snap.OutputTokens = analysis.Usage.OutputTokens
	}

	// Record which learned prior was available at decision time
	snap.PriorSource = "none"
	if prior, err := o.learning.Prior(ctx, event.Sender, event.SenderDomain(), o.cfg.PriorMinSamples); err != nil {
		log.Warn("Prior lookup failed", zap.Error(err))
	} else if prior != nil {
		snap.PriorSource = prior.KeyType
		value := prior.Prior
		snap.PriorValue = &value
	}

	if err := o.learning.SaveSnapshot(ctx, snap); err != nil {
		log.Warn("Failed to save snapshot", zap.Error(err))
	}
}

func (o *Orchestrator) recordUsage(ctx context.Context, usage *TokenUsage, log *zap.Logger) {
	if usage == nil || (usage.InputTokens == 0 && usage.OutputTokens == 0) {
		return
	}
	cost := (float64(usage.InputTokens)*o.cfg.CostInputPerMTok +
		float64(usage.OutputTokens)*o.cfg.CostOutputPerMTok) / 1_000_000
	if err := o.settings.IncrementDailyUsage(ctx, 1, cost, usage.InputTokens, usage.OutputTokens); err != nil {
		log.Warn("Failed to increment daily usage", zap.Error(err))
	}
}

// dedupTargets removes targets already notified for this message or
// throttled for the same (sender, subject) content
func (o *Orchestrator) dedupTargets(ctx context.Context, event *Event, targets []Target, log *zap.Logger) []Target {
	var fresh []Target
	for _, target := range targets {
		processed, err := o.state.IsProcessed(ctx, event.MessageID, target.ID)
		if err != nil {
			log.Warn("Processed check failed, skipping target to avoid duplicates",
				zap.String("target", target.String()),
				zap.Error(err))
			continue
		}
		if processed {
			continue
		}
		duplicate, err := o.state.IsDuplicateContent(ctx, event.Sender, event.Subject, target.ID, o.cfg.ThrottleWindow)
		if err != nil {
			log.Warn("Throttle check failed, skipping target to avoid duplicates",
				zap.String("target", target.String()),
				zap.Error(err))
			continue
		}
		if duplicate {
			log.Info("Target throttled by duplicate content", zap.String("target", target.String()))
			continue
		}
		fresh = append(fresh, target)
	}
	return fresh
}

// deliver sends to each target, marking state only on success so failed
// sends are retried by the next batch
func (o *Orchestrator) deliver(ctx context.Context, event *Event, analysis *AnalysisResult, targets []Target, log *zap.Logger) int {
	sent := 0
	for _, target := range targets {
		if o.cfg.DryRun {
			log.Info("Dry run, would send notification", zap.String("target", target.String()))
		} else if err := o.notifier.Send(ctx, target, event, analysis); err != nil {
			log.Error("Failed to send notification",
				zap.String("target", target.String()),
				zap.Error(err))
			continue
		}
		if err := o.state.MarkProcessed(ctx, event.MessageID, target.ID, event.Sender, event.Subject); err != nil {
			log.Warn("Failed to mark target processed",
				zap.String("target", target.String()),
				zap.Error(err))
		}
		sent++
	}
	return sent
}

// TriggerNotification forcibly delivers a stored event to the given
// targets (or its snapshot targets when none are given). With learn set,
// matching mute preferences are removed for each user target.
func (o *Orchestrator) TriggerNotification(ctx context.Context, emailID string, targetIDs []string, learn bool) error {
	snap, err := o.learning.Snapshot(ctx, emailID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return ErrSnapshotNotFound
	}

	event := &Event{
		Timestamp:  snap.Timestamp,
		MessageID:  snap.EmailID,
		Subject:    snap.Subject,
		Sender:     snap.FromEmail,
		Recipients: []string{snap.ToEmail},
		Owner:      snap.ToEmail,
		EventType:  "MANUAL_TRIGGER",
	}
	analysis := &AnalysisResult{
		Score:    1,
		Category: CategoryNotify,
		Reason:   snap.Reason,
		Summary:  snap.Summary,
		Source:   SourceRule,
	}

	if len(targetIDs) == 0 {
		targetIDs = snap.Targets
	}
	if len(targetIDs) == 0 {
		for _, target := range o.router.Resolve(ctx, event) {
			targetIDs = append(targetIDs, target.ID)
		}
	}
	if len(targetIDs) == 0 {
		return errors.New("no targets available")
	}

	var sendErr error
	for _, id := range targetIDs {
		target := targetFromID(id)
		if err := o.notifier.Send(ctx, target, event, analysis); err != nil {
			sendErr = errors.Join(sendErr, fmt.Errorf("send to %s: %w", target, err))
			continue
		}
		if err := o.state.MarkProcessed(ctx, emailID, target.ID, event.Sender, event.Subject); err != nil {
			o.logger.Warn("Failed to mark manual delivery processed",
				zap.String("target", target.String()),
				zap.Error(err))
		}
		if learn && target.Type == TargetUser {
			if err := o.learning.DeleteMutePreference(ctx, target.ID, event.Sender, pattern.Extract(event.Subject)); err != nil {
				o.logger.Warn("Failed to delete mute preference",
					zap.String("user_id", target.ID),
					zap.Error(err))
			}
		}
	}
	if sendErr != nil {
		return sendErr
	}

	if err := o.learning.UpdateSnapshotCategory(ctx, emailID, CategoryNotify, "manually triggered by operator"); err != nil {
		o.logger.Warn("Failed to update snapshot after trigger", zap.Error(err))
	}
	return nil
}

// BlockNotification marks a stored event silent and saves a mute
// preference for each of its user targets
func (o *Orchestrator) BlockNotification(ctx context.Context, emailID string) error {
	snap, err := o.learning.Snapshot(ctx, emailID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return ErrSnapshotNotFound
	}

	typePattern := pattern.Extract(snap.Subject)
	for _, id := range snap.Targets {
		target := targetFromID(id)
		if target.Type != TargetUser {
			continue
		}
		if err := o.Mute(ctx, target.ID, snap.FromEmail, snap.Subject); err != nil {
			o.logger.Warn("Failed to save mute preference during block",
				zap.String("user_id", target.ID),
				zap.Error(err))
		}
	}

	reason := fmt.Sprintf("manually blocked by operator (sender: %s, type: %s)", snap.FromEmail, typePattern)
	if err := o.learning.UpdateSnapshotCategory(ctx, emailID, CategorySilent, reason); err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}
	return nil
}

// Mute records that a user wants mail of this sender+type silenced
func (o *Orchestrator) Mute(ctx context.Context, userID, sender, subject string) error {
	return o.learning.SaveMutePreference(ctx, MutePreference{
		UserID:          userID,
		Sender:          sender,
		Pattern:         pattern.Extract(subject),
		OriginalSubject: subject,
		CreatedAt:       time.Now().UTC(),
	})
}

// Unmute removes the mute preference matching this sender+type
func (o *Orchestrator) Unmute(ctx context.Context, userID, sender, subject string) error {
	return o.learning.DeleteMutePreference(ctx, userID, sender, pattern.Extract(subject))
}

// RecordClick logs an open-mail click as a positive engagement signal
func (o *Orchestrator) RecordClick(ctx context.Context, emailID, userEmail string) error {
	return o.learning.LogEngagement(ctx, EngagementEvent{
		EmailID:   emailID,
		UserEmail: userEmail,
		Type:      EngagementClick,
		Timestamp: time.Now().UTC(),
	})
}

// RecordRead marks the mail read at the source and logs the read with
// its latency relative to when the notification went out
func (o *Orchestrator) RecordRead(ctx context.Context, emailID, mailbox string) error {
	if err := o.source.MarkRead(ctx, emailID, mailbox); err != nil {
		return fmt.Errorf("failed to mark mail read: %w", err)
	}

	latency := 0.0
	if snap, err := o.learning.Snapshot(ctx, emailID); err == nil && snap != nil && !snap.NotifiedAt.IsZero() {
		latency = time.Since(snap.NotifiedAt).Seconds()
	}
	return o.learning.LogEngagement(ctx, EngagementEvent{
		EmailID:    emailID,
		UserEmail:  mailbox,
		Type:       EngagementRead,
		Timestamp:  time.Now().UTC(),
		LatencySec: latency,
	})
}

// targetFromID infers the target type from a bare Slack id (users start
// with U or W, everything else is a channel)
func targetFromID(id string) Target {
	if len(id) > 0 && (id[0] == 'U' || id[0] == 'W') {
		return Target{ID: id, Type: TargetUser}
	}
	return Target{ID: id, Type: TargetChannel}
}
