package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/seokwon/mail-sentry/internal/core"
	"go.uber.org/zap"
)

// Client is a JudgmentClient implementation using the OpenAI API
type Client struct {
	client         *openai.Client
	modelName      string
	maxTokens      int
	temperature    float32
	maxSnippetSize int
	logger         *zap.Logger
}

// NewClient creates a new OpenAI judgment client
func NewClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	maxSnippetSize int,
	logger *zap.Logger,
) *Client {
	return &Client{
		client:         client,
		modelName:      modelName,
		maxTokens:      maxTokens,
		temperature:    temperature,
		maxSnippetSize: maxSnippetSize,
		logger:         logger,
	}
}

// AnalyzeEvent asks the model for a triage verdict on the event
func (c *Client) AnalyzeEvent(ctx context.Context, event *core.Event, mutes core.MuteContext) (*core.AnalysisResult, error) {
	input := core.BuildJudgmentInput(event, mutes, c.maxSnippetSize)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.modelName,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: core.JudgmentSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI API")
	}

	result, err := core.ParseJudgmentJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	result.Usage = &core.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	c.logger.Debug("OpenAI judgment complete",
		zap.String("message_id", event.MessageID),
		zap.Float64("score", result.Score))
	return result, nil
}
