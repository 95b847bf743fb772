// Package mongostore implements the learning, settings and routing
// stores on the shared document store. Every store tolerates a nil
// database and degrades to no-ops, so the engine runs (without learning
// or dynamic settings) when no document store is configured.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// NewDatabase connects to the document store. An empty URI returns a
// nil database, which the stores treat as learning-disabled mode.
func NewDatabase(uri, database string, logger *zap.Logger) (*mongo.Database, error) {
	if uri == "" {
		logger.Warn("Document store URI not set; learning, dynamic settings and routing rules are disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}

	logger.Info("Connected to document store", zap.String("database", database))
	return client.Database(database), nil
}
