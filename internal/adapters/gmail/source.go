// Package gmail implements the mail source on the Gmail API using
// domain-wide delegation: one service-account credential is impersonated
// per monitored mailbox.
package gmail

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/seokwon/mail-sentry/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	unreadQuery      = "is:unread in:inbox newer_than:1d"
	fetchConcurrency = 10
)

// Source fetches unread messages from delegated mailboxes.
type Source struct {
	credsJSON  []byte
	maxResults int64
	logger     *zap.Logger
}

// NewSource loads the service-account credentials used for delegation.
func NewSource(credentialsFile string, maxResults int, logger *zap.Logger) (*Source, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	// Validate up front so a bad key file fails at startup, not mid-batch
	if _, err := google.JWTConfigFromJSON(creds, gmailapi.GmailReadonlyScope, gmailapi.GmailModifyScope); err != nil {
		return nil, fmt.Errorf("invalid gmail credentials: %w", err)
	}
	return &Source{
		credsJSON:  creds,
		maxResults: int64(maxResults),
		logger:     logger,
	}, nil
}

// serviceFor builds a Gmail client impersonating the mailbox. Each
// mailbox needs its own token source because the subject differs.
func (s *Source) serviceFor(ctx context.Context, mailbox string) (*gmailapi.Service, error) {
	cfg, err := google.JWTConfigFromJSON(s.credsJSON, gmailapi.GmailReadonlyScope, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to build delegated credentials: %w", err)
	}
	cfg.Subject = mailbox

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client for %s: %w", mailbox, err)
	}
	return svc, nil
}

// FetchUnread fetches unread inbox messages from every mailbox in
// parallel. A failing mailbox is logged and skipped so one revoked
// delegation does not starve the rest.
func (s *Source) FetchUnread(ctx context.Context, mailboxes []string) ([]core.Event, error) {
	if len(mailboxes) == 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		events []core.Event
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, fetchConcurrency)

	for _, mailbox := range mailboxes {
		wg.Add(1)
		sem <- struct{}{}
		go func(mailbox string) {
			defer wg.Done()
			defer func() { <-sem }()

			mailboxEvents, err := s.fetchMailbox(ctx, mailbox)
			if err != nil {
				s.logger.Error("Failed to fetch unread mail",
					zap.String("mailbox", mailbox),
					zap.Error(err))
				return
			}
			mu.Lock()
			events = append(events, mailboxEvents...)
			mu.Unlock()
		}(mailbox)
	}
	wg.Wait()

	s.logger.Info("Fetched unread mail",
		zap.Int("mailboxes", len(mailboxes)),
		zap.Int("events", len(events)))
	return events, nil
}

func (s *Source) fetchMailbox(ctx context.Context, mailbox string) ([]core.Event, error) {
	svc, err := s.serviceFor(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	list, err := svc.Users.Messages.List("me").
		Q(unreadQuery).
		MaxResults(s.maxResults).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}

	events := make([]core.Event, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject", "Date", "Message-ID").
			Context(ctx).Do()
		if err != nil {
			s.logger.Warn("Failed to fetch message metadata",
				zap.String("mailbox", mailbox),
				zap.String("gmail_id", ref.Id),
				zap.Error(err))
			continue
		}
		events = append(events, parseMessage(msg, mailbox))
	}
	return events, nil
}

func parseMessage(msg *gmailapi.Message, mailbox string) core.Event {
	headers := make(map[string]string)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[strings.ToLower(h.Name)] = h.Value
		}
	}

	subject := headers["subject"]
	if subject == "" {
		subject = "(no subject)"
	}
	messageID := headers["message-id"]
	if messageID == "" {
		messageID = msg.Id
	}

	timestamp := time.Now().UTC()
	if msg.InternalDate > 0 {
		timestamp = time.UnixMilli(msg.InternalDate).UTC()
	}

	return core.Event{
		Timestamp:  timestamp,
		MessageID:  messageID,
		Subject:    subject,
		Sender:     extractAddress(headers["from"]),
		Recipients: splitAddresses(headers["to"]),
		Owner:      mailbox,
		EventType:  "UNREAD",
		Raw: map[string]string{
			"gmail_id": msg.Id,
			"snippet":  msg.Snippet,
		},
	}
}

// extractAddress pulls the bare address out of "Name <addr>" headers
func extractAddress(header string) string {
	if open := strings.Index(header, "<"); open >= 0 {
		if end := strings.Index(header[open:], ">"); end > 0 {
			return header[open+1 : open+end]
		}
	}
	return strings.TrimSpace(header)
}

func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	addresses := make([]string, 0, len(parts))
	for _, part := range parts {
		if addr := extractAddress(part); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

// MarkRead removes the UNREAD label from the message in the mailbox.
// RFC 822 message ids are resolved to Gmail internal ids first.
func (s *Source) MarkRead(ctx context.Context, messageID, mailbox string) error {
	svc, err := s.serviceFor(ctx, mailbox)
	if err != nil {
		return err
	}

	internalID := messageID
	if strings.Contains(messageID, "@") || strings.HasPrefix(messageID, "<") {
		list, err := svc.Users.Messages.List("me").
			Q("rfc822msgid:" + messageID).
			MaxResults(1).
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to resolve message id: %w", err)
		}
		if len(list.Messages) == 0 {
			return fmt.Errorf("message %q not found in %s", messageID, mailbox)
		}
		internalID = list.Messages[0].Id
	}

	_, err = svc.Users.Messages.Modify("me", internalID, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to mark message as read: %w", err)
	}

	s.logger.Info("Marked message as read",
		zap.String("message_id", messageID),
		zap.String("mailbox", mailbox))
	return nil
}
