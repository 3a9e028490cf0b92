// Package gate admits or rejects chat actions based on chat locks and
// administrator rights.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/akibot/core/logger"
	"github.com/m3rciful/akibot/game/metrics"
	"github.com/m3rciful/akibot/game/session"
)

// Action names an inbound user action.
type Action string

const (
	ActionStart   Action = "start"
	ActionPlay    Action = "play"
	ActionCancel  Action = "cancel"
	ActionAnswer  Action = "answer"
	ActionVerdict Action = "verdict"
	ActionLock    Action = "lock"
	ActionUnlock  Action = "unlock"
	ActionStats   Action = "stats"
)

// Error codes logged as err_code.
const (
	CodeChatLocked         = "CHAT_LOCKED"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeNotAdmin           = "NOT_ADMIN"
)

// Error is a gate rejection with a stable code.
type Error struct {
	code string
	msg  string
}

func (e *Error) Error() string { return "gate: " + e.msg }

// Code returns the stable error code.
func (e *Error) Code() string { return e.code }

var (
	ErrChatLocked = &Error{code: CodeChatLocked, msg: "chat is locked"}
	// ErrLockUnavailable means the lock state could not be read or written.
	ErrLockUnavailable = &Error{code: CodePersistenceFailure, msg: "lock store unavailable"}
	ErrNotAdmin        = &Error{code: CodeNotAdmin, msg: "user is not a chat administrator"}
)

// LockStore reads and writes chat locks.
type LockStore interface {
	IsChatLocked(ctx context.Context, chatID int64) (bool, error)
	LockChat(ctx context.Context, chatID, lockedBy int64) error
	UnlockChat(ctx context.Context, chatID int64) error
}

// AdminChecker answers whether userID administers chatID.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// AdminCheckerFunc adapts a function to AdminChecker.
type AdminCheckerFunc func(ctx context.Context, chatID, userID int64) (bool, error)

// IsAdmin implements AdminChecker.
func (f AdminCheckerFunc) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return f(ctx, chatID, userID)
}

// SessionEvicter removes a chat's game.
type SessionEvicter interface {
	Evict(ctx context.Context, chatID int64, reason string) (session.Snapshot, bool)
}

// Gate guards actions before they reach the session manager.
type Gate struct {
	locks    LockStore
	admins   AdminChecker
	sessions SessionEvicter
	metrics  *metrics.Metrics
}

// New builds a gate. mt may be nil.
func New(locks LockStore, admins AdminChecker, sessions SessionEvicter, mt *metrics.Metrics) *Gate {
	return &Gate{locks: locks, admins: admins, sessions: sessions, metrics: mt}
}

// Admit rejects every action in a locked chat except unlock, which is
// checked for admin rights by Unlock instead. A failed lock lookup rejects
// the action.
func (g *Gate) Admit(ctx context.Context, chatID, userID int64, action Action) error {
	if action == ActionUnlock {
		return nil
	}
	locked, err := g.locks.IsChatLocked(ctx, chatID)
	if err != nil {
		g.reject(ctx, action, CodePersistenceFailure, err)
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	if locked {
		g.reject(ctx, action, CodeChatLocked, nil)
		return ErrChatLocked
	}
	return nil
}

// IsAdmin asks the oracle; an oracle failure counts as not admin.
func (g *Gate) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	if g.admins == nil {
		return false
	}
	ok, err := g.admins.IsAdmin(ctx, chatID, userID)
	if err != nil {
		logger.Warn(ctx, logger.CompGate, "gate.admin_check",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.Int64("user_id", userID),
			logger.Err(err),
		)
		return false
	}
	return ok
}

// Lock locks the chat and ends its game. It reports whether a game was
// running.
func (g *Gate) Lock(ctx context.Context, chatID, userID int64) (bool, error) {
	if !g.IsAdmin(ctx, chatID, userID) {
		g.reject(ctx, ActionLock, CodeNotAdmin, nil)
		return false, ErrNotAdmin
	}
	if err := g.locks.LockChat(ctx, chatID, userID); err != nil {
		g.reject(ctx, ActionLock, CodePersistenceFailure, err)
		return false, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	var cancelled bool
	if g.sessions != nil {
		_, cancelled = g.sessions.Evict(ctx, chatID, metrics.ReasonLock)
	}
	logger.Info(ctx, logger.CompGate, "gate.lock",
		slog.Int64("chat_id", chatID),
		slog.Int64("user_id", userID),
		slog.Bool("session_cancelled", cancelled),
	)
	return cancelled, nil
}

// Unlock removes the chat's lock.
func (g *Gate) Unlock(ctx context.Context, chatID, userID int64) error {
	if !g.IsAdmin(ctx, chatID, userID) {
		g.reject(ctx, ActionUnlock, CodeNotAdmin, nil)
		return ErrNotAdmin
	}
	if err := g.locks.UnlockChat(ctx, chatID); err != nil {
		g.reject(ctx, ActionUnlock, CodePersistenceFailure, err)
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	logger.Info(ctx, logger.CompGate, "gate.unlock",
		slog.Int64("chat_id", chatID),
		slog.Int64("user_id", userID),
	)
	return nil
}

func (g *Gate) reject(ctx context.Context, action Action, code string, err error) {
	g.metrics.GateRejected(code)
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	logger.Event(ctx, logger.CompGate, level, "gate.reject",
		slog.String("action", string(action)),
		slog.String("err_code", code),
		logger.Err(err),
	)
}
