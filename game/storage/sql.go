package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/akibot/core/logger"
)

// Queries use ? placeholders and are rebound for the connection's driver.
const (
	qSaveUser   = `INSERT INTO users (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`
	qCountUsers = `SELECT COUNT(*) FROM users`
	qLockChat   = `INSERT INTO chat_locks (chat_id, locked_by) VALUES (?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET locked_by = excluded.locked_by, locked_at = CURRENT_TIMESTAMP`
	qUnlockChat   = `DELETE FROM chat_locks WHERE chat_id = ?`
	qIsChatLocked = `SELECT COUNT(*) FROM chat_locks WHERE chat_id = ?`
)

// SQL is a Repository over the tables created by the embedded migrations.
// It works with both the postgres and the sqlite driver.
type SQL struct {
	db *sqlx.DB
}

// NewSQL wraps an open connection. Close closes db.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

// SaveUser implements Repository.
func (s *SQL) SaveUser(ctx context.Context, userID int64) error {
	return s.exec(ctx, "save_user", qSaveUser, userID)
}

// CountUsers implements Repository.
func (s *SQL) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(qCountUsers)); err != nil {
		return 0, fmt.Errorf("storage: count users: %w", err)
	}
	return n, nil
}

// LockChat implements Repository.
func (s *SQL) LockChat(ctx context.Context, chatID, lockedBy int64) error {
	return s.exec(ctx, "lock_chat", qLockChat, chatID, lockedBy)
}

// UnlockChat implements Repository.
func (s *SQL) UnlockChat(ctx context.Context, chatID int64) error {
	return s.exec(ctx, "unlock_chat", qUnlockChat, chatID)
}

// IsChatLocked implements Repository.
func (s *SQL) IsChatLocked(ctx context.Context, chatID int64) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(qIsChatLocked), chatID); err != nil {
		return false, fmt.Errorf("storage: lock lookup: %w", err)
	}
	return n > 0, nil
}

// Close implements Repository.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) exec(ctx context.Context, op, query string, args ...any) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, logger.CompStorage, "storage.exec",
			slog.String("op", op),
			slog.String("driver", s.db.DriverName()),
			slog.Duration("duration", logger.Took(start)),
			logger.Err(err),
		)
	}
	if err != nil {
		return fmt.Errorf("storage: %s: %w", op, err)
	}
	return nil
}
