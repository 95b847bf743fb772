package factory

import (
	"fmt"

	"github.com/seokwon/mail-sentry/internal/adapters/state"
	"github.com/seokwon/mail-sentry/internal/config"
	"github.com/seokwon/mail-sentry/internal/core"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// StateFactory creates delivery-state stores
type StateFactory struct {
	cfg    *config.Config
	db     *mongo.Database
	logger *zap.Logger
}

// NewStateFactory creates a new state store factory. The database is only
// required for the mongo store type and may be nil otherwise.
func NewStateFactory(cfg *config.Config, db *mongo.Database, logger *zap.Logger) *StateFactory {
	return &StateFactory{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// CreateStateStore creates a new state store based on the configuration
func (f *StateFactory) CreateStateStore() (core.StateStore, error) {
	stateConfig, err := f.cfg.GetState()
	if err != nil {
		return nil, fmt.Errorf("invalid state configuration: %w", err)
	}

	switch stateConfig.Type {
	case "memory":
		return state.NewMemoryStore(
			stateConfig.ProcessedTTL,
			stateConfig.ThrottleTTL,
			stateConfig.CleanupFrequency,
			f.logger,
		), nil
	case "sqlite":
		return state.NewSQLiteStore(
			stateConfig.SQLitePath,
			stateConfig.ProcessedTTL,
			stateConfig.ThrottleTTL,
			stateConfig.CleanupFrequency,
			f.logger,
		)
	case "mysql":
		return state.NewMySQLStore(
			stateConfig.MySQLDSN,
			stateConfig.ProcessedTTL,
			stateConfig.ThrottleTTL,
			stateConfig.CleanupFrequency,
			f.logger,
		)
	case "mongo":
		if f.db == nil {
			return nil, fmt.Errorf("state.type is mongo but mongo.uri is not set")
		}
		return state.NewMongoStore(
			f.db,
			stateConfig.ProcessedTTL,
			stateConfig.ThrottleTTL,
			f.logger,
		)
	default:
		return nil, fmt.Errorf("unsupported state store type: %s", stateConfig.Type)
	}
}
