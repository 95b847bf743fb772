package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/seokwon/mail-sentry/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Client is a JudgmentClient implementation using Google Gemini
type Client struct {
	client         *genai.Client
	model          *genai.GenerativeModel
	modelName      string
	maxSnippetSize int
	logger         *zap.Logger
}

// NewClient creates a new Gemini judgment client
func NewClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	maxSnippetSize int,
	logger *zap.Logger,
) (*Client, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(core.JudgmentSystemPrompt)},
	}

	return &Client{
		client:         client,
		model:          model,
		modelName:      modelName,
		maxSnippetSize: maxSnippetSize,
		logger:         logger,
	}, nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// AnalyzeEvent asks the model for a triage verdict on the event
func (c *Client) AnalyzeEvent(ctx context.Context, event *core.Event, mutes core.MuteContext) (*core.AnalysisResult, error) {
	input := core.BuildJudgmentInput(event, mutes, c.maxSnippetSize)

	resp, err := c.model.GenerateContent(ctx, genai.Text(input))
	if err != nil {
		return nil, fmt.Errorf("failed to call Gemini API: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	result, err := core.ParseJudgmentJSON(text.String())
	if err != nil {
		return nil, err
	}
	if resp.UsageMetadata != nil {
		result.Usage = &core.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	c.logger.Debug("Gemini judgment complete",
		zap.String("message_id", event.MessageID),
		zap.Float64("score", result.Score))
	return result, nil
}
