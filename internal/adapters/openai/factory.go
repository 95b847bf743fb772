package openai

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/seokwon/mail-sentry/internal/config"
	"go.uber.org/zap"
)

// Factory creates OpenAI judgment clients
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new OpenAI factory
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateClient creates a new OpenAI judgment client
func (f *Factory) CreateClient() (*Client, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" {
		return nil, fmt.Errorf("openai.api_key is not set")
	}

	return NewClient(
		openai.NewClient(openaiCfg.APIKey),
		openaiCfg.ModelName,
		openaiCfg.MaxTokens,
		openaiCfg.Temperature,
		openaiCfg.MaxSnippetSize,
		f.logger,
	), nil
}
