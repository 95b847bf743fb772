// Package slack delivers notifications as Block Kit messages, DMs for
// user targets and channel posts for channel targets.
package slack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seokwon/mail-sentry/internal/core"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Action ids carried on the interactive buttons. The HTTP server matches
// on these when Slack posts the interaction back.
const (
	ActionOpenMail      = "open_mail"
	ActionMarkRead      = "mark_read"
	ActionMutePattern   = "mute_pattern"
	ActionUnmutePattern = "unmute_pattern"
)

const maxHeaderRunes = 150

// ButtonValue is the JSON payload stored in a button's value field.
type ButtonValue struct {
	MessageID string `json:"message_id"`
	Owner     string `json:"owner,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

// Notifier posts notifications through the Slack Web API.
type Notifier struct {
	client *slack.Client
	logger *zap.Logger
}

// NewNotifier creates a notifier. An empty token yields a notifier that
// fails every send, which keeps delivery state unmarked for retry.
func NewNotifier(botToken string, logger *zap.Logger) *Notifier {
	if botToken == "" {
		logger.Warn("Slack bot token not set; notifications will fail")
		return &Notifier{logger: logger}
	}
	return &Notifier{client: slack.New(botToken), logger: logger}
}

// Send posts the notification to a single target. User targets get a DM
// through a freshly opened conversation.
func (n *Notifier) Send(ctx context.Context, target core.Target, event *core.Event, analysis *core.AnalysisResult) error {
	if n.client == nil {
		return fmt.Errorf("slack client not configured")
	}

	channelID := target.ID
	if target.Type == core.TargetUser {
		channel, _, _, err := n.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{target.ID},
		})
		if err != nil {
			return fmt.Errorf("failed to open conversation with %s: %w", target.ID, err)
		}
		channelID = channel.ID
	}

	_, _, err := n.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(fallbackText(event, analysis), false),
		slack.MsgOptionBlocks(buildBlocks(event, analysis)...),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", target, err)
	}

	n.logger.Info("Sent notification",
		zap.String("target", target.String()),
		zap.String("message_id", event.MessageID))
	return nil
}

func fallbackText(event *core.Event, analysis *core.AnalysisResult) string {
	subject := event.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return fmt.Sprintf("[%s] %s", analysis.Category, subject)
}

func buildBlocks(event *core.Event, analysis *core.AnalysisResult) []slack.Block {
	header := event.Subject
	if header == "" {
		header = "(no subject)"
	}
	if runes := []rune(header); len(runes) > maxHeaderRunes {
		header = string(runes[:maxHeaderRunes-3]) + "..."
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "📧 "+header, true, false)),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("*From*: %s\n*To*: %s", event.Sender, event.Owner), false, false),
			nil, nil),
	}

	if analysis.Summary != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				"📝 *Summary*\n"+analysis.Summary, false, false),
			nil, nil))
	}

	openButton := slack.NewButtonBlockElement(ActionOpenMail, buttonValue(ButtonValue{
		MessageID: event.MessageID,
		Owner:     event.Owner,
	}), slack.NewTextBlockObject(slack.PlainTextType, "Open in Gmail", false, false))
	openButton.Style = slack.StylePrimary
	openButton.URL = mailLink(event.MessageID)

	markReadButton := slack.NewButtonBlockElement(ActionMarkRead, buttonValue(ButtonValue{
		MessageID: event.MessageID,
		Owner:     event.Owner,
	}), slack.NewTextBlockObject(slack.PlainTextType, "Mark as read", false, false))

	muteButton := slack.NewButtonBlockElement(ActionMutePattern, buttonValue(ButtonValue{
		MessageID: event.MessageID,
		Sender:    event.Sender,
		Subject:   event.Subject,
	}), slack.NewTextBlockObject(slack.PlainTextType, "Mute this kind of mail", false, false))
	muteButton.Style = slack.StyleDanger
	muteButton.Confirm = slack.NewConfirmationBlockObject(
		slack.NewTextBlockObject(slack.PlainTextType, "Mute this kind of mail", false, false),
		slack.NewTextBlockObject(slack.PlainTextType,
			"Only notifications for similar mail from this sender are muted. Mail with different content keeps notifying as usual.", false, false),
		slack.NewTextBlockObject(slack.PlainTextType, "Mute", false, false),
		slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
	)

	blocks = append(blocks, slack.NewActionBlock("notification_actions",
		openButton, markReadButton, muteButton))
	return blocks
}

func buttonValue(v ButtonValue) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func mailLink(messageID string) string {
	return "https://mail.google.com/mail/u/0/#search/rfc822msgid:" + messageID
}
