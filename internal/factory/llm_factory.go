package factory

import (
	"fmt"

	"github.com/seokwon/mail-sentry/internal/adapters/bedrock"
	"github.com/seokwon/mail-sentry/internal/adapters/gemini"
	"github.com/seokwon/mail-sentry/internal/adapters/openai"
	"github.com/seokwon/mail-sentry/internal/config"
	"github.com/seokwon/mail-sentry/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates judgment clients
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateJudgmentClient creates a new judgment client based on the configuration
func (f *LLMFactory) CreateJudgmentClient() (core.JudgmentClient, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger)
		return factory.CreateClient()
	case "gemini":
		factory := gemini.NewFactory(f.cfg, f.logger)
		return factory.CreateClient()
	case "openai":
		factory := openai.NewFactory(f.cfg, f.logger)
		return factory.CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
