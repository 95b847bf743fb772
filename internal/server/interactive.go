package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	slackadapter "github.com/seokwon/mail-sentry/internal/adapters/slack"
	"github.com/seokwon/mail-sentry/internal/pattern"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const interactionTimeout = 30 * time.Second

var responseClient = &http.Client{Timeout: 10 * time.Second}

// interactionResponse is the payload posted back to Slack's response_url.
type interactionResponse struct {
	ResponseType    string        `json:"response_type,omitempty"`
	ReplaceOriginal bool          `json:"replace_original"`
	Text            string        `json:"text,omitempty"`
	Blocks          []slack.Block `json:"blocks,omitempty"`
}

// handleInteractive receives Slack block actions. Slack expects an
// acknowledgement within 3 seconds, so the work runs in the background
// and the outcome goes back through response_url.
func (s *Server) handleInteractive(c *fiber.Ctx) error {
	if s.signingSecret != "" {
		if err := s.verifySignature(c); err != nil {
			s.logger.Warn("Rejected interactive request", zap.Error(err))
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	payloadRaw := c.FormValue("payload")
	if payloadRaw == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payloadRaw), &callback); err != nil {
		s.logger.Warn("Failed to parse interaction payload", zap.Error(err))
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if callback.Type == slack.InteractionTypeBlockActions && len(callback.ActionCallback.BlockActions) > 0 {
		go s.processAction(callback)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) verifySignature(c *fiber.Ctx) error {
	header := http.Header{}
	header.Set("X-Slack-Signature", c.Get("X-Slack-Signature"))
	header.Set("X-Slack-Request-Timestamp", c.Get("X-Slack-Request-Timestamp"))

	verifier, err := slack.NewSecretsVerifier(header, s.signingSecret)
	if err != nil {
		return fmt.Errorf("failed to build verifier: %w", err)
	}
	if _, err := verifier.Write(c.Body()); err != nil {
		return fmt.Errorf("failed to hash request body: %w", err)
	}
	return verifier.Ensure()
}

func (s *Server) processAction(callback slack.InteractionCallback) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	action := callback.ActionCallback.BlockActions[0]
	userID := callback.User.ID

	var value slackadapter.ButtonValue
	if action.Value != "" {
		if err := json.Unmarshal([]byte(action.Value), &value); err != nil {
			s.logger.Warn("Failed to parse button value",
				zap.String("action_id", action.ActionID),
				zap.Error(err))
			return
		}
	}

	s.logger.Info("Handling Slack action",
		zap.String("action_id", action.ActionID),
		zap.String("user_id", userID))

	switch action.ActionID {
	case slackadapter.ActionMutePattern:
		s.handleMute(ctx, callback.ResponseURL, userID, value)
	case slackadapter.ActionUnmutePattern:
		s.handleUnmute(ctx, callback.ResponseURL, userID, value)
	case slackadapter.ActionMarkRead:
		s.handleMarkRead(ctx, callback.ResponseURL, value)
	case slackadapter.ActionOpenMail:
		if err := s.orchestrator.RecordClick(ctx, value.MessageID, value.Owner); err != nil {
			s.logger.Warn("Failed to record click engagement", zap.Error(err))
		}
	default:
		s.logger.Debug("Ignoring unknown action", zap.String("action_id", action.ActionID))
	}
}

func (s *Server) handleMute(ctx context.Context, responseURL, userID string, value slackadapter.ButtonValue) {
	if err := s.orchestrator.Mute(ctx, userID, value.Sender, value.Subject); err != nil {
		s.logger.Error("Failed to save mute preference", zap.Error(err))
		s.respond(responseURL, interactionResponse{
			ResponseType: "ephemeral",
			Text:         "❌ Could not mute this kind of mail. Please try again.",
		})
		return
	}

	undoValue, _ := json.Marshal(slackadapter.ButtonValue{
		Sender:  value.Sender,
		Subject: value.Subject,
	})
	undo := slack.NewButtonBlockElement(slackadapter.ActionUnmutePattern, string(undoValue),
		slack.NewTextBlockObject(slack.PlainTextType, "Notify me again (undo)", false, false))

	s.respond(responseURL, interactionResponse{
		ResponseType: "ephemeral",
		Text: fmt.Sprintf("🔕 Muted. Mail like %q from %s will no longer notify you.",
			pattern.Extract(value.Subject), value.Sender),
		Blocks: []slack.Block{
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType,
					fmt.Sprintf("🔕 *Muted* — mail like `%s` from `%s` will no longer notify you.",
						pattern.Extract(value.Subject), value.Sender), false, false),
				nil, nil),
			slack.NewActionBlock("mute_undo", undo),
		},
	})
}

func (s *Server) handleUnmute(ctx context.Context, responseURL, userID string, value slackadapter.ButtonValue) {
	if err := s.orchestrator.Unmute(ctx, userID, value.Sender, value.Subject); err != nil {
		s.logger.Error("Failed to delete mute preference", zap.Error(err))
		s.respond(responseURL, interactionResponse{
			ResponseType: "ephemeral",
			Text:         "❌ Could not restore notifications. Please try again.",
		})
		return
	}
	s.respond(responseURL, interactionResponse{
		ResponseType: "ephemeral",
		Text:         fmt.Sprintf("✅ Notifications from %s are back on.", value.Sender),
	})
}

func (s *Server) handleMarkRead(ctx context.Context, responseURL string, value slackadapter.ButtonValue) {
	if err := s.orchestrator.RecordRead(ctx, value.MessageID, value.Owner); err != nil {
		s.logger.Error("Failed to mark mail as read", zap.Error(err))
		s.respond(responseURL, interactionResponse{
			ResponseType: "ephemeral",
			Text:         "❌ Could not mark the mail as read in Gmail.",
		})
		return
	}
	s.respond(responseURL, interactionResponse{
		ResponseType: "ephemeral",
		Text:         "✅ Marked as read in Gmail.",
	})
}

func (s *Server) respond(responseURL string, response interactionResponse) {
	if responseURL == "" {
		return
	}
	body, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to encode interaction response", zap.Error(err))
		return
	}
	resp, err := responseClient.Post(responseURL, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Error("Failed to post interaction response", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("Interaction response rejected", zap.Int("status", resp.StatusCode))
	}
}
