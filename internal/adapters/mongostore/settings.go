package mongostore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seokwon/mail-sentry/internal/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	collSystemSettings = "system_settings"
	collSystemControl  = "system_control"
	collDailyUsage     = "daily_usage"

	settingsDocID = "general"
	controlDocID  = "status"

	settingsCacheTTL = 5 * time.Minute
)

type controlDoc struct {
	Enabled           bool      `bson:"enabled"`
	PausedAt          time.Time `bson:"paused_at,omitempty"`
	PausedBy          string    `bson:"paused_by,omitempty"`
	PauseReason       string    `bson:"pause_reason,omitempty"`
	DailyLimitCalls   int       `bson:"daily_limit_calls"`
	DailyLimitCostUSD float64   `bson:"daily_limit_cost_usd"`
	LastBatchAt       time.Time `bson:"last_batch_at,omitempty"`
	LastBatchCount    int       `bson:"last_batch_count,omitempty"`
}

type usageDoc struct {
	ID           string  `bson:"_id"`
	Calls        int     `bson:"calls"`
	CostUSD      float64 `bson:"cost_usd"`
	InputTokens  int     `bson:"input_tokens"`
	OutputTokens int     `bson:"output_tokens"`
}

// SettingsStore serves dynamic filter rules, system control state and
// daily usage counters from the document store. Filter rules are cached
// for a few minutes; a refresh failure keeps serving the stale copy.
type SettingsStore struct {
	db       *mongo.Database
	location *time.Location
	logger   *zap.Logger

	mu          sync.Mutex
	cachedRules core.DynamicFilterRules
	cachedAt    time.Time
}

// NewSettingsStore creates a settings store. The timezone determines
// which calendar day a usage increment lands on.
func NewSettingsStore(db *mongo.Database, timezone string, logger *zap.Logger) (*SettingsStore, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid usage timezone %q: %w", timezone, err)
	}
	return &SettingsStore{db: db, location: location, logger: logger}, nil
}

func (s *SettingsStore) enabled() bool {
	return s.db != nil
}

// FilterRules returns the dynamic rule overrides, cached with a
// double-checked refresh
func (s *SettingsStore) FilterRules(ctx context.Context) (core.DynamicFilterRules, error) {
	if !s.enabled() {
		return core.DynamicFilterRules{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.cachedAt) < settingsCacheTTL && !s.cachedAt.IsZero() {
		return s.cachedRules, nil
	}

	var rules core.DynamicFilterRules
	err := s.db.Collection(collSystemSettings).
		FindOne(ctx, bson.M{"_id": settingsDocID}).
		Decode(&rules)
	if err == mongo.ErrNoDocuments {
		s.cachedRules = core.DynamicFilterRules{}
		s.cachedAt = time.Now()
		return s.cachedRules, nil
	}
	if err != nil {
		if !s.cachedAt.IsZero() {
			s.logger.Warn("Settings refresh failed, serving stale rules", zap.Error(err))
			return s.cachedRules, nil
		}
		return core.DynamicFilterRules{}, fmt.Errorf("failed to load dynamic settings: %w", err)
	}

	s.cachedRules = rules
	s.cachedAt = time.Now()
	return rules, nil
}

// SystemStatus returns the operator-controlled run state, nil when the
// store is unconfigured or the control document does not exist yet
func (s *SettingsStore) SystemStatus(ctx context.Context) (*core.SystemStatus, error) {
	if !s.enabled() {
		return nil, nil
	}
	var doc controlDoc
	err := s.db.Collection(collSystemControl).
		FindOne(ctx, bson.M{"_id": controlDocID}).
		Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load system status: %w", err)
	}
	return &core.SystemStatus{
		Enabled:           doc.Enabled,
		PausedAt:          doc.PausedAt,
		PausedBy:          doc.PausedBy,
		PauseReason:       doc.PauseReason,
		DailyLimitCalls:   doc.DailyLimitCalls,
		DailyLimitCostUSD: doc.DailyLimitCostUSD,
		LastBatchAt:       doc.LastBatchAt,
		LastBatchCount:    doc.LastBatchCount,
	}, nil
}

// SetSystemEnabled flips the pause flag with audit metadata
func (s *SettingsStore) SetSystemEnabled(ctx context.Context, enabled bool, actor, reason string) error {
	if !s.enabled() {
		return nil
	}
	update := bson.M{"enabled": enabled}
	if !enabled {
		update["paused_at"] = time.Now().UTC()
		update["paused_by"] = actor
		update["pause_reason"] = reason
	}
	_, err := s.db.Collection(collSystemControl).UpdateOne(ctx,
		bson.M{"_id": controlDocID},
		bson.M{"$set": update},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update system control: %w", err)
	}
	return nil
}

// UpdateLastBatch records when the last batch ran and its size
func (s *SettingsStore) UpdateLastBatch(ctx context.Context, at time.Time, processed int) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.Collection(collSystemControl).UpdateOne(ctx,
		bson.M{"_id": controlDocID},
		bson.M{"$set": bson.M{"last_batch_at": at, "last_batch_count": processed}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to record batch metadata: %w", err)
	}
	return nil
}

func (s *SettingsStore) today() string {
	return time.Now().In(s.location).Format("2006-01-02")
}

// DailyUsage returns today's usage counters, zero-valued when no call
// has been made today
func (s *SettingsStore) DailyUsage(ctx context.Context) (*core.DailyUsage, error) {
	if !s.enabled() {
		return nil, nil
	}
	date := s.today()
	var doc usageDoc
	err := s.db.Collection(collDailyUsage).FindOne(ctx, bson.M{"_id": date}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return &core.DailyUsage{Date: date}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load daily usage: %w", err)
	}
	return &core.DailyUsage{
		Date:         date,
		Calls:        doc.Calls,
		CostUSD:      doc.CostUSD,
		InputTokens:  doc.InputTokens,
		OutputTokens: doc.OutputTokens,
	}, nil
}

// IncrementDailyUsage atomically adds to today's counters with $inc so
// concurrent workers never lose updates
func (s *SettingsStore) IncrementDailyUsage(ctx context.Context, calls int, costUSD float64, inputTokens, outputTokens int) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.Collection(collDailyUsage).UpdateOne(ctx,
		bson.M{"_id": s.today()},
		bson.M{"$inc": bson.M{
			"calls":         calls,
			"cost_usd":      costUSD,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to increment daily usage: %w", err)
	}
	return nil
}
