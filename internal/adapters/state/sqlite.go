package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore is a StateStore backed by an embedded SQLite database,
// suitable for single-instance deployments.
type SQLiteStore struct {
	db           *sql.DB
	processedTTL time.Duration
	throttleTTL  time.Duration
	cleanupFreq  time.Duration
	logger       *zap.Logger
	stopCh       chan struct{}
}

// NewSQLiteStore opens (and if needed initializes) a SQLite state store
func NewSQLiteStore(dbPath string, processedTTL, throttleTTL, cleanupFreq time.Duration, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	s := &SQLiteStore{
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

func (s *SQLiteStore) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_notifications (
			marker_key TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS content_throttle (
			throttle_key TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			target_id TEXT NOT NULL,
			sent_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS state_metadata (
			key TEXT PRIMARY KEY,
			value TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_processed_expires ON processed_notifications(expires_at);
		CREATE INDEX IF NOT EXISTS idx_throttle_expires ON content_throttle(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return nil
}

// IsProcessed reports whether (message, target) was already delivered
func (s *SQLiteStore) IsProcessed(ctx context.Context, messageID, targetID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_notifications WHERE marker_key = ? AND expires_at > ?`,
		processedKey(messageID, targetID), time.Now()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query processed marker: %w", err)
	}
	return count > 0, nil
}

// IsDuplicateContent reports whether the same content reached the target
// within the window
func (s *SQLiteStore) IsDuplicateContent(ctx context.Context, sender, subject, targetID string, window time.Duration) (bool, error) {
	var sentAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT sent_at FROM content_throttle WHERE throttle_key = ? AND expires_at > ?`,
		throttleKey(sender, subject, targetID), time.Now()).Scan(&sentAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query content throttle: %w", err)
	}
	return time.Since(sentAt) <= window, nil
}

// MarkProcessed records a delivery in both keyspaces
func (s *SQLiteStore) MarkProcessed(ctx context.Context, messageID, targetID, sender, subject string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO processed_notifications (marker_key, message_id, target_id, processed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		processedKey(messageID, targetID), messageID, targetID, now, now.Add(s.processedTTL))
	if err != nil {
		return fmt.Errorf("failed to store processed marker: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO content_throttle (throttle_key, sender, target_id, sent_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		throttleKey(sender, subject, targetID), sender, targetID, now, now.Add(s.throttleTTL))
	if err != nil {
		return fmt.Errorf("failed to store throttle marker: %w", err)
	}
	return nil
}

// LastFetchedAt returns the batch fetch high-water mark
func (s *SQLiteStore) LastFetchedAt(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state_metadata WHERE key = 'last_fetched_at'`).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query fetch high-water mark: %w", err)
	}
	return t, nil
}

// SetLastFetchedAt advances the batch fetch high-water mark
func (s *SQLiteStore) SetLastFetchedAt(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state_metadata (key, value) VALUES ('last_fetched_at', ?)`, t)
	if err != nil {
		return fmt.Errorf("failed to store fetch high-water mark: %w", err)
	}
	return nil
}

func (s *SQLiteStore) cleanup(ctx context.Context) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_notifications WHERE expires_at <= ?`, now)
	if err != nil {
		return fmt.Errorf("failed to clean processed markers: %w", err)
	}
	processedRows, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM content_throttle WHERE expires_at <= ?`, now)
	if err != nil {
		return fmt.Errorf("failed to clean throttle markers: %w", err)
	}
	throttleRows, _ := res.RowsAffected()

	s.logger.Debug("Cleaned up expired state rows",
		zap.Int64("processed", processedRows),
		zap.Int64("throttle", throttleRows))
	return nil
}

func (s *SQLiteStore) startCleanupTask() {
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
func (s *SQLiteStore) Close() error {
	close(s.stopCh)
	return s.db.Close()
}
