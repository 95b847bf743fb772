package state

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	collProcessed = "processed_notifications"
	collThrottle  = "content_throttle"
	collMetadata  = "state_metadata"
)

type processedDoc struct {
	ID          string    `bson:"_id"`
	MessageID   string    `bson:"message_id"`
	TargetID    string    `bson:"target_id"`
	ProcessedAt time.Time `bson:"processed_at"`
	ExpiresAt   time.Time `bson:"expires_at"`
}

type throttleDoc struct {
	ID        string    `bson:"_id"`
	Sender    string    `bson:"sender"`
	TargetID  string    `bson:"target_id"`
	SentAt    time.Time `bson:"sent_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoStore is a StateStore backed by the shared document store, so
// multiple instances coordinate through the same markers.
type MongoStore struct {
	db           *mongo.Database
	processedTTL time.Duration
	throttleTTL  time.Duration
	logger       *zap.Logger
}

// NewMongoStore creates a document-store-backed state store. A TTL index
// on expires_at makes the server expire markers; reads still check the
// stored expiry so behavior does not depend on the sweep cadence.
func NewMongoStore(db *mongo.Database, processedTTL, throttleTTL time.Duration, logger *zap.Logger) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("document store database is required for the mongo state store")
	}

	s := &MongoStore{
		db:           db,
		processedTTL: processedTTL,
		throttleTTL:  throttleTTL,
		logger:       logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	for _, coll := range []string{collProcessed, collThrottle} {
		if _, err := db.Collection(coll).Indexes().CreateOne(ctx, ttlIndex); err != nil {
			return nil, fmt.Errorf("failed to create TTL index on %s: %w", coll, err)
		}
	}

	return s, nil
}

// IsProcessed reports whether (message, target) was already delivered
func (s *MongoStore) IsProcessed(ctx context.Context, messageID, targetID string) (bool, error) {
	var doc processedDoc
	err := s.db.Collection(collProcessed).
		FindOne(ctx, bson.M{"_id": processedKey(messageID, targetID)}).
		Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query processed marker: %w", err)
	}
	return time.Now().Before(doc.ExpiresAt), nil
}

// IsDuplicateContent reports whether the same content reached the target
// within the window
func (s *MongoStore) IsDuplicateContent(ctx context.Context, sender, subject, targetID string, window time.Duration) (bool, error) {
	var doc throttleDoc
	err := s.db.Collection(collThrottle).
		FindOne(ctx, bson.M{"_id": throttleKey(sender, subject, targetID)}).
		Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query content throttle: %w", err)
	}
	if time.Now().After(doc.ExpiresAt) {
		return false, nil
	}
	return time.Since(doc.SentAt) <= window, nil
}

// MarkProcessed records a delivery in both keyspaces. Upserts keep the
// operation idempotent under concurrent batches.
func (s *MongoStore) MarkProcessed(ctx context.Context, messageID, targetID, sender, subject string) error {
	now := time.Now().UTC()
	opts := options.Update().SetUpsert(true)

	_, err := s.db.Collection(collProcessed).UpdateOne(ctx,
		bson.M{"_id": processedKey(messageID, targetID)},
		bson.M{"$set": processedDoc{
			ID:          processedKey(messageID, targetID),
			MessageID:   messageID,
			TargetID:    targetID,
			ProcessedAt: now,
			ExpiresAt:   now.Add(s.processedTTL),
		}}, opts)
	if err != nil {
		return fmt.Errorf("failed to store processed marker: %w", err)
	}

	_, err = s.db.Collection(collThrottle).UpdateOne(ctx,
		bson.M{"_id": throttleKey(sender, subject, targetID)},
		bson.M{"$set": throttleDoc{
			ID:        throttleKey(sender, subject, targetID),
			Sender:    sender,
			TargetID:  targetID,
			SentAt:    now,
			ExpiresAt: now.Add(s.throttleTTL),
		}}, opts)
	if err != nil {
		return fmt.Errorf("failed to store throttle marker: %w", err)
	}
	return nil
}

// LastFetchedAt returns the batch fetch high-water mark
func (s *MongoStore) LastFetchedAt(ctx context.Context) (time.Time, error) {
	var doc struct {
		Value time.Time `bson:"value"`
	}
	err := s.db.Collection(collMetadata).
		FindOne(ctx, bson.M{"_id": "last_fetched_at"}).
		Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query fetch high-water mark: %w", err)
	}
	return doc.Value, nil
}

// SetLastFetchedAt advances the batch fetch high-water mark
func (s *MongoStore) SetLastFetchedAt(ctx context.Context, t time.Time) error {
	_, err := s.db.Collection(collMetadata).UpdateOne(ctx,
		bson.M{"_id": "last_fetched_at"},
		bson.M{"$set": bson.M{"value": t}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store fetch high-water mark: %w", err)
	}
	return nil
}

// Close is a no-op; the shared client is owned by the container
func (s *MongoStore) Close() error {
	return nil
}
