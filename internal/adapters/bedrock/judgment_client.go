package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/seokwon/mail-sentry/internal/core"
	"go.uber.org/zap"
)

// Client is a JudgmentClient implementation using Anthropic models on
// Amazon Bedrock via the messages API
type Client struct {
	client         *bedrockruntime.Client
	modelID        string
	maxTokens      int
	temperature    float32
	maxSnippetSize int
	logger         *zap.Logger
}

// NewClient creates a new Bedrock judgment client
func NewClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	maxSnippetSize int,
	logger *zap.Logger,
) *Client {
	return &Client{
		client:         client,
		modelID:        modelID,
		maxTokens:      maxTokens,
		temperature:    temperature,
		maxSnippetSize: maxSnippetSize,
		logger:         logger,
	}
}

type messagesRequest struct {
	AnthropicVersion string         `json:"anthropic_version"`
	MaxTokens        int            `json:"max_tokens"`
	Temperature      float32        `json:"temperature"`
	System           string         `json:"system"`
	Messages         []messageBlock `json:"messages"`
}

type messageBlock struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens          int `json:"input_tokens"`
		OutputTokens         int `json:"output_tokens"`
		CacheReadInputTokens int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

// AnalyzeEvent asks the model for a triage verdict on the event
func (c *Client) AnalyzeEvent(ctx context.Context, event *core.Event, mutes core.MuteContext) (*core.AnalysisResult, error) {
	input := core.BuildJudgmentInput(event, mutes, c.maxSnippetSize)

	payload, err := json.Marshal(messagesRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        c.maxTokens,
		Temperature:      c.temperature,
		System:           core.JudgmentSystemPrompt,
		Messages: []messageBlock{
			{Role: "user", Content: []contentBlock{{Type: "text", Text: input}}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	var modelResp messagesResponse
	if err := json.Unmarshal(resp.Body, &modelResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Bedrock response: %w", err)
	}

	var text strings.Builder
	for _, block := range modelResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result, err := core.ParseJudgmentJSON(text.String())
	if err != nil {
		return nil, err
	}
	result.Usage = &core.TokenUsage{
		InputTokens:     modelResp.Usage.InputTokens,
		OutputTokens:    modelResp.Usage.OutputTokens,
		CacheReadTokens: modelResp.Usage.CacheReadInputTokens,
	}

	c.logger.Debug("Bedrock judgment complete",
		zap.String("message_id", event.MessageID),
		zap.Float64("score", result.Score),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens))
	return result, nil
}
