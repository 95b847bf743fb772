// Package di builds the dependency injection container.
package di

import (
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/seokwon/mail-sentry/internal/adapters/gmail"
	"github.com/seokwon/mail-sentry/internal/adapters/mongostore"
	slackadapter "github.com/seokwon/mail-sentry/internal/adapters/slack"
	"github.com/seokwon/mail-sentry/internal/config"
	"github.com/seokwon/mail-sentry/internal/core"
	"github.com/seokwon/mail-sentry/internal/factory"
	"github.com/seokwon/mail-sentry/internal/logging"
	"github.com/seokwon/mail-sentry/internal/server"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register the shared document store database (nil when unconfigured)
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*mongo.Database, error) {
		mongoCfg := cfg.GetMongo()
		return mongostore.NewDatabase(mongoCfg.URI, mongoCfg.Database, logger)
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStateFactory); err != nil {
		return nil, err
	}

	// Register judgment client
	if err := container.Provide(func(f *factory.LLMFactory) (core.JudgmentClient, error) {
		return f.CreateJudgmentClient()
	}); err != nil {
		return nil, err
	}

	// Register state store
	if err := container.Provide(func(f *factory.StateFactory) (core.StateStore, error) {
		return f.CreateStateStore()
	}); err != nil {
		return nil, err
	}

	// Register document-backed stores
	if err := container.Provide(func(db *mongo.Database, logger *zap.Logger) core.LearningStore {
		return mongostore.NewLearningStore(db, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(db *mongo.Database, cfg *config.Config, logger *zap.Logger) (core.SettingsStore, error) {
		return mongostore.NewSettingsStore(db, cfg.GetUsage().Timezone, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(db *mongo.Database, cfg *config.Config, logger *zap.Logger) (core.RoutingStore, error) {
		routingCfg, err := cfg.GetRouting()
		if err != nil {
			return nil, fmt.Errorf("invalid routing configuration: %w", err)
		}
		return mongostore.NewRoutingStore(db, routingCfg.CacheTTL, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register mail source
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.MailSource, error) {
		return gmail.NewFactory(cfg, logger).CreateSource()
	}); err != nil {
		return nil, err
	}

	// Register notifier
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.Notifier {
		return slackadapter.NewFactory(cfg, logger).CreateNotifier()
	}); err != nil {
		return nil, err
	}

	// Register classifier with the static rule set
	if err := container.Provide(func(judge core.JudgmentClient, settings core.SettingsStore, cfg *config.Config, logger *zap.Logger) *core.Classifier {
		filterCfg := cfg.GetFilter()
		return core.NewClassifier(judge, settings, core.FilterRules{
			BlacklistDomains: filterCfg.BlacklistDomains,
			WhitelistDomains: filterCfg.WhitelistDomains,
			SpamKeywords:     filterCfg.SpamKeywords,
			NotifyThreshold:  filterCfg.NotifyThreshold,
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register router with static fallback rules
	if err := container.Provide(func(store core.RoutingStore, cfg *config.Config, logger *zap.Logger) (*core.Router, error) {
		routingCfg, err := cfg.GetRouting()
		if err != nil {
			return nil, fmt.Errorf("invalid routing configuration: %w", err)
		}
		staticRules := make(map[string][]string, len(routingCfg.StaticRules))
		for _, rule := range routingCfg.StaticRules {
			staticRules[rule.Email] = rule.Targets
		}
		return core.NewRouter(store, staticRules, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register governor
	if err := container.Provide(core.NewGovernor); err != nil {
		return nil, err
	}

	// Register prior engine
	if err := container.Provide(func(learning core.LearningStore, cfg *config.Config, logger *zap.Logger) (*core.PriorEngine, error) {
		priorCfg, err := cfg.GetPrior()
		if err != nil {
			return nil, fmt.Errorf("invalid prior configuration: %w", err)
		}
		weights := core.EngagementWeights{
			ReadFastWithin: priorCfg.ReadFastWithin,
			ReadSlowWithin: priorCfg.ReadSlowWithin,
			ReadFast:       priorCfg.ScoreReadFast,
			ReadSlow:       priorCfg.ScoreReadSlow,
			Click:          priorCfg.ScoreClick,
		}
		return core.NewPriorEngine(learning, weights, priorCfg.PositiveThreshold, priorCfg.Baseline, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register orchestrator
	if err := container.Provide(func(
		classifier *core.Classifier,
		router *core.Router,
		governor *core.Governor,
		state core.StateStore,
		learning core.LearningStore,
		settings core.SettingsStore,
		routing core.RoutingStore,
		source core.MailSource,
		notifier core.Notifier,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.Orchestrator, error) {
		stateCfg, err := cfg.GetState()
		if err != nil {
			return nil, fmt.Errorf("invalid state configuration: %w", err)
		}
		priorCfg, err := cfg.GetPrior()
		if err != nil {
			return nil, fmt.Errorf("invalid prior configuration: %w", err)
		}
		routingCfg, err := cfg.GetRouting()
		if err != nil {
			return nil, fmt.Errorf("invalid routing configuration: %w", err)
		}
		staticMailboxes := make([]string, 0, len(routingCfg.StaticRules))
		for _, rule := range routingCfg.StaticRules {
			staticMailboxes = append(staticMailboxes, rule.Email)
		}
		batchCfg := cfg.GetBatch()
		usageCfg := cfg.GetUsage()
		return core.NewOrchestrator(classifier, router, governor, state, learning, settings, routing, source, notifier,
			core.OrchestratorConfig{
				MaxWorkers:        batchCfg.MaxWorkers,
				ThrottleWindow:    stateCfg.ThrottleWindow,
				DryRun:            batchCfg.DryRun,
				CostInputPerMTok:  usageCfg.CostInputPerMTok,
				CostOutputPerMTok: usageCfg.CostOutputPerMTok,
				PriorMinSamples:   priorCfg.MinSamples,
				StaticMailboxes:   staticMailboxes,
			}, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(server.New); err != nil {
		return nil, err
	}

	return container, nil
}
