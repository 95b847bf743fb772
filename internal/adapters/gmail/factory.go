package gmail

import (
	"fmt"

	"github.com/seokwon/mail-sentry/internal/config"
	"go.uber.org/zap"
)

// Factory creates Gmail sources from configuration
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new Gmail source factory
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateSource creates a mail source from the gmail config section
func (f *Factory) CreateSource() (*Source, error) {
	gmailCfg := f.cfg.GetGmail()
	if gmailCfg.CredentialsFile == "" {
		return nil, fmt.Errorf("gmail.credentials_file is required")
	}
	return NewSource(gmailCfg.CredentialsFile, gmailCfg.MaxResults, f.logger)
}
