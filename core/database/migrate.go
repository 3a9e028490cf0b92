package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/akibot/core/logger"
)

// Migration directions accepted by Migrate.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// RunMigrations applies all up migrations found at the root of fsys.
func RunMigrations(cfg Config, fsys fs.FS) error {
	return Migrate(cfg, fsys, DirectionUp, 0)
}

// Migrate moves the schema in the given direction. steps <= 0 means all the way.
func Migrate(cfg Config, fsys fs.FS, direction string, steps int) error {
	files := listMigrationFiles(fsys)
	preview, truncated := logger.SummarizeStrings(files, 6)
	logger.MIG.Debug("migrations resolved",
		slog.String("event", "resolve"),
		slog.String("driver", cfg.DriverName()),
		slog.Int("files_total", len(files)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", truncated),
	)

	m, err := newMigrator(cfg, fsys)
	if err != nil {
		logger.MIG.Error("init failed", slog.String("event", "db.migrate"), logger.Err(err))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.MIG.Warn("close failed",
				slog.String("event", "db.migrate"),
				logger.Err(errors.Join(srcErr, dbErr)),
			)
		}
	}()

	fromVer, _, _ := m.Version()
	start := time.Now()
	switch {
	case direction == DirectionUp && steps <= 0:
		err = m.Up()
	case direction == DirectionUp:
		err = m.Steps(steps)
	case direction == DirectionDown && steps <= 0:
		err = m.Down()
	case direction == DirectionDown:
		err = m.Steps(-steps)
	default:
		return fmt.Errorf("invalid migration direction %q: must be 'up' or 'down'", direction)
	}
	took := time.Since(start)

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("direction", direction),
			logger.Err(err),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return fmt.Errorf("migration execution failed: %w", err)
	}

	toVer, _, _ := m.Version()
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.String("direction", direction),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", countBetween(files, uint64(fromVer), uint64(toVer))),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}

func newMigrator(cfg Config, fsys fs.FS) (*migrate.Migrate, error) {
	dbURL, err := cfg.MigrateURL()
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, dbURL)
}

func listMigrationFiles(fsys fs.FS) []string {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// countBetween counts migration files whose version lies in (lo, hi] in either direction.
func countBetween(files []string, from, to uint64) int {
	lo, hi := min(from, to), max(from, to)
	c := 0
	for _, f := range files {
		if v := parseVersion(f); v > lo && v <= hi {
			c++
		}
	}
	return c
}
