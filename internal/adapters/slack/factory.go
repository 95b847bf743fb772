package slack

import (
	"github.com/seokwon/mail-sentry/internal/config"
	"go.uber.org/zap"
)

// Factory creates Slack notifiers from configuration
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new Slack notifier factory
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateNotifier creates a notifier from the slack config section
func (f *Factory) CreateNotifier() *Notifier {
	return NewNotifier(f.cfg.GetSlack().BotToken, f.logger)
}
