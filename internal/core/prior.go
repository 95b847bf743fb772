package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EngagementWeights tunes how interaction events are scored when
// computing sender priors
type EngagementWeights struct {
	ReadFastWithin time.Duration
	ReadSlowWithin time.Duration
	ReadFast       float64
	ReadSlow       float64
	Click          float64
}

// ScoreEngagement sums the engagement score of one mail's events. A fast
// read is worth the most; a read after the slow window is neutral.
func ScoreEngagement(events []EngagementEvent, w EngagementWeights) float64 {
	total := 0.0
	for _, ev := range events {
		switch ev.Type {
		case EngagementRead:
			latency := time.Duration(ev.LatencySec * float64(time.Second))
			if latency <= w.ReadFastWithin {
				total += w.ReadFast
			} else if latency <= w.ReadSlowWithin {
				total += w.ReadSlow
			}
		case EngagementClick:
			total += w.Click
		}
	}
	return total
}

// PriorFromScores buckets per-mail scores into positives (>= threshold)
// and negatives (<= 0), ignoring the neutral middle, and returns
// positives/(positives+negatives). With no samples the baseline is
// returned with a sample count of zero.
func PriorFromScores(scores []float64, positiveThreshold, baseline float64) (float64, int) {
	positives := 0
	negatives := 0
	for _, score := range scores {
		if score >= positiveThreshold {
			positives++
		} else if score <= 0 {
			negatives++
		}
	}

	samples := positives + negatives
	if samples == 0 {
		return baseline, 0
	}
	return float64(positives) / float64(samples), samples
}

// PriorEngine recomputes sender engagement priors from recent snapshots
// and engagement events
type PriorEngine struct {
	store             LearningStore
	weights           EngagementWeights
	positiveThreshold float64
	baseline          float64
	logger            *zap.Logger
}

// NewPriorEngine creates a prior engine
func NewPriorEngine(store LearningStore, weights EngagementWeights, positiveThreshold, baseline float64, logger *zap.Logger) *PriorEngine {
	return &PriorEngine{
		store:             store,
		weights:           weights,
		positiveThreshold: positiveThreshold,
		baseline:          baseline,
		logger:            logger,
	}
}

// UpdatePriors recomputes priors for every sender active within the last
// windowDays, at most limit senders. Per-sender failures are isolated so
// one bad sender does not abort the sweep.
func (p *PriorEngine) UpdatePriors(ctx context.Context, windowDays, limit int) (updated, failed int) {
	since := time.Now().AddDate(0, 0, -windowDays)

	senders, err := p.store.ActiveSenders(ctx, since, limit)
	if err != nil {
		p.logger.Warn("Failed to list active senders for prior update", zap.Error(err))
		return 0, 0
	}

	for _, sender := range senders {
		if err := p.updateSender(ctx, sender, since); err != nil {
			p.logger.Warn("Prior update failed for sender",
				zap.String("sender", sender.Email),
				zap.Error(err))
			failed++
			continue
		}
		updated++
	}

	p.logger.Info("Prior update complete",
		zap.Int("updated", updated),
		zap.Int("failed", failed))
	return updated, failed
}

func (p *PriorEngine) updateSender(ctx context.Context, sender SenderKey, since time.Time) error {
	snapshots, err := p.store.SnapshotsFrom(ctx, sender.Email, since)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	scores := make([]float64, 0, len(snapshots))
	for _, snap := range snapshots {
		events, err := p.store.EngagementForEmail(ctx, snap.EmailID, since)
		if err != nil {
			return err
		}
		scores = append(scores, ScoreEngagement(events, p.weights))
	}

	prior, samples := PriorFromScores(scores, p.positiveThreshold, p.baseline)
	if samples == 0 {
		return nil
	}

	return p.store.UpsertPrior(ctx, PriorRecord{
		KeyType:   "sender",
		KeyValue:  sender.Email,
		Prior:     prior,
		Samples:   samples,
		UpdatedAt: time.Now().UTC(),
	})
}
