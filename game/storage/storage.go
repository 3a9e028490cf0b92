// Package storage persists the seen-user set and chat locks.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrClosed is returned by a repository after Close.
var ErrClosed = errors.New("storage: closed")

// Repository stores users and chat locks. A chat is locked while a lock
// record exists for it.
type Repository interface {
	// SaveUser records userID; saving a known user is a no-op.
	SaveUser(ctx context.Context, userID int64) error
	CountUsers(ctx context.Context) (int, error)
	// LockChat creates or refreshes the chat's lock record.
	LockChat(ctx context.Context, chatID, lockedBy int64) error
	// UnlockChat deletes the chat's lock record if any.
	UnlockChat(ctx context.Context, chatID int64) error
	IsChatLocked(ctx context.Context, chatID int64) (bool, error)
	Close() error
}

// Config selects and configures the repository backend.
type Config struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
}

// DriverName returns the normalized driver, defaulting to memory.
func (c Config) DriverName() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return DriverMemory
	}
	return d
}

// UsesSQL reports whether the driver needs a SQL connection.
func (c Config) UsesSQL() bool {
	switch c.DriverName() {
	case DriverPostgres, DriverSQLite:
		return true
	}
	return false
}

// Validate rejects unknown drivers.
func (c Config) Validate() error {
	switch c.DriverName() {
	case DriverMemory, DriverRedis, DriverPostgres, DriverSQLite:
		return nil
	}
	return fmt.Errorf("storage: unsupported driver %q; allowed: memory, redis, postgres, sqlite", c.Driver)
}
