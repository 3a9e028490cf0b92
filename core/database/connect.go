package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/akibot/core/logger"
)

// Connect opens the database connection, configures the pool, and verifies connectivity.
// Postgres startup races are absorbed by retrying until waitFor elapses.
func Connect(cfg Config) (*sqlx.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	driver := cfg.DriverName()

	waitFor := 30 * time.Second
	if driver == DriverSQLite {
		waitFor = 0
	}

	start := time.Now()
	db, err := connectWithRetry(driver, dsn, waitFor)
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", driver),
			slog.String("host", cfg.Host),
			slog.String("db", cfg.Name),
			slog.Duration("duration", logger.RoundMS(took)),
			logger.Err(err),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if driver == DriverSQLite || pool <= 0 {
		// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
		pool = 1
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", driver),
		slog.String("host", cfg.Host),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", pool),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return db, nil
}

func connectWithRetry(driver, dsn string, waitFor time.Duration) (*sqlx.DB, error) {
	deadline := time.Now().Add(waitFor)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, err := sqlx.ConnectContext(ctx, driver, dsn)
		cancel()
		if err == nil {
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		logger.DB.Debug("db not ready",
			slog.String("event", "db.wait"),
			slog.String("driver", driver),
			logger.Err(err),
		)
		time.Sleep(2 * time.Second)
	}
}
