package gemini

import (
	"fmt"

	"github.com/seokwon/mail-sentry/internal/config"
	"go.uber.org/zap"
)

// Factory creates Gemini judgment clients
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new Gemini factory
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateClient creates a new Gemini judgment client
func (f *Factory) CreateClient() (*Client, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, fmt.Errorf("gemini.api_key is not set")
	}

	return NewClient(
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.MaxSnippetSize,
		f.logger,
	)
}
