package mongostore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seokwon/mail-sentry/internal/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const collRoutingRules = "routing_rules"

type routingRuleDoc struct {
	SlackUserID   string   `bson:"slack_user_id"`
	GmailAccounts []string `bson:"gmail_accounts"`
	Enabled       bool     `bson:"enabled"`
}

// RoutingStore resolves mail addresses to notification targets from the
// routing_rules collection. Rules map one Slack user to the mailboxes
// they watch; the store inverts that into an address index and caches
// it, keeping the stale index when a refresh fails.
type RoutingStore struct {
	db       *mongo.Database
	cacheTTL time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	byAddress map[string][]core.Target
	mailboxes []string
	cachedAt  time.Time
}

// NewRoutingStore creates a routing store with the given cache TTL.
func NewRoutingStore(db *mongo.Database, cacheTTL time.Duration, logger *zap.Logger) *RoutingStore {
	return &RoutingStore{
		db:       db,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func (s *RoutingStore) enabled() bool {
	return s.db != nil
}

// TargetsFor returns the targets subscribed to the address, empty when
// no rule covers it
func (s *RoutingStore) TargetsFor(ctx context.Context, address string) ([]core.Target, error) {
	if !s.enabled() {
		return nil, nil
	}
	index, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return index[address], nil
}

// MonitoredMailboxes returns every mailbox named by an enabled rule
func (s *RoutingStore) MonitoredMailboxes(ctx context.Context) ([]string, error) {
	if !s.enabled() {
		return nil, nil
	}
	_, mailboxes, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return mailboxes, nil
}

// snapshot returns the cached index, refreshing it past the TTL with a
// double-checked lock. A refresh failure serves the stale copy.
func (s *RoutingStore) snapshot(ctx context.Context) (map[string][]core.Target, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cachedAt.IsZero() && time.Since(s.cachedAt) < s.cacheTTL {
		return s.byAddress, s.mailboxes, nil
	}

	index, mailboxes, err := s.load(ctx)
	if err != nil {
		if !s.cachedAt.IsZero() {
			s.logger.Warn("Routing rules refresh failed, serving stale index", zap.Error(err))
			return s.byAddress, s.mailboxes, nil
		}
		return nil, nil, err
	}

	s.byAddress = index
	s.mailboxes = mailboxes
	s.cachedAt = time.Now()
	return index, mailboxes, nil
}

func (s *RoutingStore) load(ctx context.Context) (map[string][]core.Target, []string, error) {
	cursor, err := s.db.Collection(collRoutingRules).Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load routing rules: %w", err)
	}
	defer cursor.Close(ctx)

	index := make(map[string][]core.Target)
	seen := make(map[string]struct{})
	for cursor.Next(ctx) {
		var doc routingRuleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, nil, fmt.Errorf("failed to decode routing rule: %w", err)
		}
		if doc.SlackUserID == "" {
			continue
		}
		target := core.Target{ID: doc.SlackUserID, Type: core.TargetUser}
		for _, address := range doc.GmailAccounts {
			if address == "" {
				continue
			}
			index[address] = appendTarget(index[address], target)
			seen[address] = struct{}{}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate routing rules: %w", err)
	}

	mailboxes := make([]string, 0, len(seen))
	for address := range seen {
		mailboxes = append(mailboxes, address)
	}
	sort.Strings(mailboxes)

	s.logger.Debug("Routing rules refreshed",
		zap.Int("addresses", len(index)),
		zap.Int("mailboxes", len(mailboxes)))
	return index, mailboxes, nil
}

func appendTarget(targets []core.Target, target core.Target) []core.Target {
	for _, existing := range targets {
		if existing == target {
			return targets
		}
	}
	return append(targets, target)
}
