package mongostore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/seokwon/mail-sentry/internal/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	collEmailEvents      = "email_events"
	collEngagementEvents = "engagement_events"
	collPriors           = "priors_org"
	collUserFeedback     = "user_feedback"
)

type snapshotDoc struct {
	ID           string    `bson:"_id"`
	Subject      string    `bson:"subject"`
	FromEmail    string    `bson:"from_email"`
	FromDomain   string    `bson:"from_domain"`
	ToEmail      string    `bson:"to_email"`
	Timestamp    time.Time `bson:"timestamp"`
	Score        float64   `bson:"score"`
	Category     string    `bson:"final_category"`
	Reason       string    `bson:"reason"`
	Summary      string    `bson:"summary,omitempty"`
	Source       string    `bson:"source"`
	Targets      []string  `bson:"slack_targets"`
	PriorSource  string    `bson:"prior_used"`
	PriorValue   *float64  `bson:"prior_value,omitempty"`
	InputTokens  int       `bson:"llm_input_tokens"`
	OutputTokens int       `bson:"llm_output_tokens"`
	NotifiedAt   time.Time `bson:"notified_at"`
	CreatedAt    time.Time `bson:"created_at"`
}

type engagementDoc struct {
	ID         string    `bson:"_id"`
	EmailID    string    `bson:"email_id"`
	UserEmail  string    `bson:"user_email"`
	EventType  string    `bson:"event_type"`
	EventTS    time.Time `bson:"event_ts"`
	LatencySec float64   `bson:"latency_sec"`
}

type priorDoc struct {
	ID        string    `bson:"_id"`
	KeyType   string    `bson:"key_type"`
	KeyValue  string    `bson:"key_value"`
	Prior     float64   `bson:"prior"`
	Samples   int       `bson:"samples"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type feedbackDoc struct {
	ID              string    `bson:"_id"`
	UserID          string    `bson:"user_id"`
	Sender          string    `bson:"sender"`
	Pattern         string    `bson:"subject_pattern"`
	OriginalSubject string    `bson:"original_subject,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
}

// LearningStore persists snapshots, engagement events, priors and mute
// preferences in the document store
type LearningStore struct {
	db     *mongo.Database
	logger *zap.Logger
}

// NewLearningStore creates a learning store. A nil database yields a
// store whose operations are safe no-ops.
func NewLearningStore(db *mongo.Database, logger *zap.Logger) *LearningStore {
	return &LearningStore{db: db, logger: logger}
}

func (s *LearningStore) enabled() bool {
	return s.db != nil
}

func feedbackKey(userID, sender, pattern string) string {
	sum := sha256.Sum256([]byte(userID + "|" + sender + "|" + pattern))
	return hex.EncodeToString(sum[:])[:32]
}

// SaveMutePreference upserts a user's mute entry, keyed by
// (user, sender, pattern) so repeats overwrite rather than accumulate
func (s *LearningStore) SaveMutePreference(ctx context.Context, pref core.MutePreference) error {
	if !s.enabled() {
		return nil
	}
	doc := feedbackDoc{
		ID:              feedbackKey(pref.UserID, pref.Sender, pref.Pattern),
		UserID:          pref.UserID,
		Sender:          pref.Sender,
		Pattern:         pref.Pattern,
		OriginalSubject: pref.OriginalSubject,
		CreatedAt:       pref.CreatedAt,
	}
	_, err := s.db.Collection(collUserFeedback).UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save mute preference: %w", err)
	}
	s.logger.Info("Saved mute preference",
		zap.String("user_id", pref.UserID),
		zap.String("sender", pref.Sender),
		zap.String("pattern", pref.Pattern))
	return nil
}

// DeleteMutePreference removes the mute entry for (user, sender, pattern)
func (s *LearningStore) DeleteMutePreference(ctx context.Context, userID, sender, pattern string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.Collection(collUserFeedback).DeleteOne(ctx,
		bson.M{"_id": feedbackKey(userID, sender, pattern)})
	if err != nil {
		return fmt.Errorf("failed to delete mute preference: %w", err)
	}
	return nil
}

// MutePreferences lists a user's mute entries
func (s *LearningStore) MutePreferences(ctx context.Context, userID string) ([]core.MutePreference, error) {
	if !s.enabled() {
		return nil, nil
	}
	cursor, err := s.db.Collection(collUserFeedback).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list mute preferences: %w", err)
	}
	defer cursor.Close(ctx)

	var prefs []core.MutePreference
	for cursor.Next(ctx) {
		var doc feedbackDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode mute preference: %w", err)
		}
		prefs = append(prefs, core.MutePreference{
			UserID:          doc.UserID,
			Sender:          doc.Sender,
			Pattern:         doc.Pattern,
			OriginalSubject: doc.OriginalSubject,
			CreatedAt:       doc.CreatedAt,
		})
	}
	return prefs, cursor.Err()
}

// SaveSnapshot upserts an event snapshot keyed by email id
func (s *LearningStore) SaveSnapshot(ctx context.Context, snap *core.EventSnapshot) error {
	if !s.enabled() {
		return nil
	}
	doc := snapshotDoc{
		ID:           snap.EmailID,
		Subject:      snap.Subject,
		FromEmail:    snap.FromEmail,
		FromDomain:   snap.FromDomain,
		ToEmail:      snap.ToEmail,
		Timestamp:    snap.Timestamp,
		Score:        snap.Score,
		Category:     string(snap.Category),
		Reason:       snap.Reason,
		Summary:      snap.Summary,
		Source:       string(snap.Source),
		Targets:      snap.Targets,
		PriorSource:  snap.PriorSource,
		PriorValue:   snap.PriorValue,
		InputTokens:  snap.InputTokens,
		OutputTokens: snap.OutputTokens,
		NotifiedAt:   snap.NotifiedAt,
		CreatedAt:    snap.CreatedAt,
	}
	_, err := s.db.Collection(collEmailEvents).UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the stored snapshot for an email id, nil when absent
func (s *LearningStore) Snapshot(ctx context.Context, emailID string) (*core.EventSnapshot, error) {
	if !s.enabled() {
		return nil, nil
	}
	var doc snapshotDoc
	err := s.db.Collection(collEmailEvents).FindOne(ctx, bson.M{"_id": emailID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snapshotFromDoc(&doc), nil
}

// UpdateSnapshotCategory rewrites the final category and reason of a
// stored snapshot (manual trigger/block)
func (s *LearningStore) UpdateSnapshotCategory(ctx context.Context, emailID string, category core.Category, reason string) error {
	if !s.enabled() {
		return nil
	}
	res, err := s.db.Collection(collEmailEvents).UpdateOne(ctx,
		bson.M{"_id": emailID},
		bson.M{"$set": bson.M{
			"final_category": string(category),
			"reason":         reason,
			"overridden_at":  time.Now().UTC(),
		}})
	if err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("no snapshot with email id %q", emailID)
	}
	return nil
}

// LogEngagement appends one engagement event
func (s *LearningStore) LogEngagement(ctx context.Context, ev core.EngagementEvent) error {
	if !s.enabled() {
		return nil
	}
	doc := engagementDoc{
		ID:         uuid.New().String(),
		EmailID:    ev.EmailID,
		UserEmail:  ev.UserEmail,
		EventType:  ev.Type,
		EventTS:    ev.Timestamp,
		LatencySec: ev.LatencySec,
	}
	if _, err := s.db.Collection(collEngagementEvents).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log engagement: %w", err)
	}
	return nil
}

// EngagementForEmail lists an email's engagement events newer than since
func (s *LearningStore) EngagementForEmail(ctx context.Context, emailID string, since time.Time) ([]core.EngagementEvent, error) {
	if !s.enabled() {
		return nil, nil
	}
	cursor, err := s.db.Collection(collEngagementEvents).Find(ctx, bson.M{
		"email_id": emailID,
		"event_ts": bson.M{"$gte": since},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list engagement events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []core.EngagementEvent
	for cursor.Next(ctx) {
		var doc engagementDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode engagement event: %w", err)
		}
		events = append(events, core.EngagementEvent{
			EmailID:    doc.EmailID,
			UserEmail:  doc.UserEmail,
			Type:       doc.EventType,
			Timestamp:  doc.EventTS,
			LatencySec: doc.LatencySec,
		})
	}
	return events, cursor.Err()
}

// ActiveSenders lists distinct senders with snapshots newer than since
func (s *LearningStore) ActiveSenders(ctx context.Context, since time.Time, limit int) ([]core.SenderKey, error) {
	if !s.enabled() {
		return nil, nil
	}
	cursor, err := s.db.Collection(collEmailEvents).Find(ctx,
		bson.M{"created_at": bson.M{"$gte": since}},
		options.Find().SetLimit(int64(limit)).SetProjection(bson.M{"from_email": 1, "from_domain": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list active senders: %w", err)
	}
	defer cursor.Close(ctx)

	seen := make(map[string]struct{})
	var senders []core.SenderKey
	for cursor.Next(ctx) {
		var doc struct {
			FromEmail  string `bson:"from_email"`
			FromDomain string `bson:"from_domain"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode sender: %w", err)
		}
		if doc.FromEmail == "" {
			continue
		}
		if _, ok := seen[doc.FromEmail]; ok {
			continue
		}
		seen[doc.FromEmail] = struct{}{}
		senders = append(senders, core.SenderKey{Email: doc.FromEmail, Domain: doc.FromDomain})
	}
	return senders, cursor.Err()
}

// SnapshotsFrom lists a sender's snapshots newer than since
func (s *LearningStore) SnapshotsFrom(ctx context.Context, fromEmail string, since time.Time) ([]core.EventSnapshot, error) {
	if !s.enabled() {
		return nil, nil
	}
	cursor, err := s.db.Collection(collEmailEvents).Find(ctx, bson.M{
		"from_email": fromEmail,
		"created_at": bson.M{"$gte": since},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for sender: %w", err)
	}
	defer cursor.Close(ctx)

	var snaps []core.EventSnapshot
	for cursor.Next(ctx) {
		var doc snapshotDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		snaps = append(snaps, *snapshotFromDoc(&doc))
	}
	return snaps, cursor.Err()
}

// UpsertPrior writes a prior keyed by its subject value
func (s *LearningStore) UpsertPrior(ctx context.Context, rec core.PriorRecord) error {
	if !s.enabled() {
		return nil
	}
	doc := priorDoc{
		ID:        rec.KeyValue,
		KeyType:   rec.KeyType,
		KeyValue:  rec.KeyValue,
		Prior:     rec.Prior,
		Samples:   rec.Samples,
		UpdatedAt: rec.UpdatedAt,
	}
	_, err := s.db.Collection(collPriors).UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert prior: %w", err)
	}
	return nil
}

// Prior returns the sender-level prior when it has enough samples,
// falling back to the domain-level one, else nil
func (s *LearningStore) Prior(ctx context.Context, sender, domain string, minSamples int) (*core.PriorRecord, error) {
	if !s.enabled() {
		return nil, nil
	}
	for _, key := range []string{sender, domain} {
		if key == "" {
			continue
		}
		var doc priorDoc
		err := s.db.Collection(collPriors).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load prior: %w", err)
		}
		if doc.Samples >= minSamples {
			return &core.PriorRecord{
				KeyType:   doc.KeyType,
				KeyValue:  doc.KeyValue,
				Prior:     doc.Prior,
				Samples:   doc.Samples,
				UpdatedAt: doc.UpdatedAt,
			}, nil
		}
	}
	return nil, nil
}

func snapshotFromDoc(doc *snapshotDoc) *core.EventSnapshot {
	return &core.EventSnapshot{
		EmailID:      doc.ID,
		Subject:      doc.Subject,
		FromEmail:    doc.FromEmail,
		FromDomain:   doc.FromDomain,
		ToEmail:      doc.ToEmail,
		Timestamp:    doc.Timestamp,
		Score:        doc.Score,
		Category:     core.ParseCategory(doc.Category),
		Reason:       doc.Reason,
		Summary:      doc.Summary,
		Source:       core.Source(doc.Source),
		Targets:      doc.Targets,
		PriorSource:  doc.PriorSource,
		PriorValue:   doc.PriorValue,
		InputTokens:  doc.InputTokens,
		OutputTokens: doc.OutputTokens,
		NotifiedAt:   doc.NotifiedAt,
		CreatedAt:    doc.CreatedAt,
	}
}
