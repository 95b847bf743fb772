package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLStore is a StateStore backed by MySQL, for deployments where
// several instances share dedup state.
type MySQLStore struct {
	db           *sql.DB
	processedTTL time.Duration
	throttleTTL  time.Duration
	cleanupFreq  time.Duration
	logger       *zap.Logger
	stopCh       chan struct{}
}

// NewMySQLStore opens (and if needed initializes) a MySQL state store
func NewMySQLStore(dsn string, processedTTL, throttleTTL, cleanupFreq time.Duration, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn+"?parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{
		db:           db,
		processedTTL: processedTTL,
		throttleTTL:  throttleTTL,
		cleanupFreq:  cleanupFreq,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	go s.startCleanupTask()
	return s, nil
}

func (s *MySQLStore) initDB() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_notifications (
			marker_key VARCHAR(32) PRIMARY KEY,
			message_id VARCHAR(512) NOT NULL,
			target_id VARCHAR(64) NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			INDEX idx_processed_expires (expires_at)
		)`,
		`CREATE TABLE IF NOT EXISTS content_throttle (
			throttle_key VARCHAR(32) PRIMARY KEY,
			sender VARCHAR(320) NOT NULL,
			target_id VARCHAR(64) NOT NULL,
			sent_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			INDEX idx_throttle_expires (expires_at)
		)`,
		`CREATE TABLE IF NOT EXISTS state_metadata (
			meta_key VARCHAR(64) PRIMARY KEY,
			meta_value TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize state schema: %w", err)
		}
	}
	return nil
}

// IsProcessed reports whether (message, target) was already delivered
func (s *MySQLStore) IsProcessed(ctx context.Context, messageID, targetID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_notifications WHERE marker_key = ? AND expires_at > NOW()`,
		processedKey(messageID, targetID)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query processed marker: %w", err)
	}
	return count > 0, nil
}

// IsDuplicateContent reports whether the same content reached the target
// within the window
func (s *MySQLStore) IsDuplicateContent(ctx context.Context, sender, subject, targetID string, window time.Duration) (bool, error) {
	var sentAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT sent_at FROM content_throttle WHERE throttle_key = ? AND expires_at > NOW()`,
		throttleKey(sender, subject, targetID)).Scan(&sentAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query content throttle: %w", err)
	}
	return time.Since(sentAt) <= window, nil
}

// MarkProcessed records a delivery in both keyspaces
func (s *MySQLStore) MarkProcessed(ctx context.Context, messageID, targetID, sender, subject string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_notifications (marker_key, message_id, target_id, processed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE processed_at = VALUES(processed_at), expires_at = VALUES(expires_at)`,
		processedKey(messageID, targetID), messageID, targetID, now, now.Add(s.processedTTL))
	if err != nil {
		return fmt.Errorf("failed to store processed marker: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_throttle (throttle_key, sender, target_id, sent_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE sent_at = VALUES(sent_at), expires_at = VALUES(expires_at)`,
		throttleKey(sender, subject, targetID), sender, targetID, now, now.Add(s.throttleTTL))
	if err != nil {
		return fmt.Errorf("failed to store throttle marker: %w", err)
	}
	return nil
}

// LastFetchedAt returns the batch fetch high-water mark
func (s *MySQLStore) LastFetchedAt(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM state_metadata WHERE meta_key = 'last_fetched_at'`).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query fetch high-water mark: %w", err)
	}
	return t, nil
}

// SetLastFetchedAt advances the batch fetch high-water mark
func (s *MySQLStore) SetLastFetchedAt(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state_metadata (meta_key, meta_value) VALUES ('last_fetched_at', ?)
		 ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`, t)
	if err != nil {
		return fmt.Errorf("failed to store fetch high-water mark: %w", err)
	}
	return nil
}

func (s *MySQLStore) cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_notifications WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("failed to clean processed markers: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content_throttle WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("failed to clean throttle markers: %w", err)
	}
	return nil
}

func (s *MySQLStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.cleanup(context.Background()); err != nil {
				s.logger.Error("State cleanup failed", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the cleanup task and closes the database
func (s *MySQLStore) Close() error {
	close(s.stopCh)
	return s.db.Close()
}
