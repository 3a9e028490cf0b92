package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/akibot/core/logger"
	"github.com/m3rciful/akibot/game/metrics"
)

// Notifier delivers a message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, chatID int64, text string) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Interval between sweeps; DefaultCleanupInterval when zero.
	Interval time.Duration
	// Message is sent to every chat whose game expired.
	Message string
}

// Sweeper periodically evicts sessions idle for longer than the manager's
// timeout and tells their chats.
type Sweeper struct {
	manager  *Manager
	notifier Notifier
	cfg      SweeperConfig
}

// NewSweeper builds a sweeper. A nil notifier disables notifications.
func NewSweeper(m *Manager, n Notifier, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupInterval
	}
	return &Sweeper{manager: m, notifier: n, cfg: cfg}
}

// Run sweeps every interval until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) error {
	cl := cronLogger{}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(sw.cfg.Interval), cron.FuncJob(func() { sw.Sweep(ctx) }))
	c.Start()
	logger.Info(ctx, logger.CompSweeper, "sweep.start", slog.Duration("interval", sw.cfg.Interval))
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info(context.WithoutCancel(ctx), logger.CompSweeper, "sweep.stop")
	return nil
}

// Sweep evicts every expired session once and returns their snapshots.
// Each eviction re-checks expiry under the store lock, so a session
// refreshed since the scan survives. Notifications go out after deletion
// and their failures are only logged.
func (sw *Sweeper) Sweep(ctx context.Context) []Snapshot {
	start := time.Now()
	m := sw.manager
	now := m.now()
	timeout := m.cfg.Timeout
	expired := func(s *Session) bool { return !s.busy && s.Expired(now, timeout) }

	var candidates []int64
	m.store.Range(func(chatID int64, s Snapshot) bool {
		if !s.Busy && s.Expired(now, timeout) {
			candidates = append(candidates, chatID)
		}
		return true
	})

	var evicted []Snapshot
	for _, chatID := range candidates {
		snap, ok := m.store.RemoveIf(chatID, expired)
		if !ok {
			continue
		}
		evicted = append(evicted, snap)
		m.ended(logger.WithSessionID(ctx, snap.ID.String()), snap, metrics.ReasonExpired)
	}
	m.metrics.Evicted(len(evicted))

	failed := 0
	for _, snap := range evicted {
		if sw.notifier == nil {
			break
		}
		if err := sw.notifier.Notify(ctx, snap.ChatID, sw.cfg.Message); err != nil {
			failed++
			logger.Warn(logger.WithSessionID(ctx, snap.ID.String()), logger.CompSweeper, "sweep.notify",
				slog.String("status", "fail"),
				slog.Int64("chat_id", snap.ChatID),
				logger.Err(err),
			)
		}
	}

	level := slog.LevelDebug
	if len(evicted) > 0 {
		level = slog.LevelInfo
	}
	logger.Event(ctx, logger.CompSweeper, level, "sweep.tick",
		slog.Int("scanned", len(candidates)),
		slog.Int("evicted", len(evicted)),
		slog.Int("notify_failed", failed),
		slog.Int("live", m.store.Len()),
		slog.Duration("duration", logger.Took(start)),
	)
	return evicted
}

// cronLogger routes scheduler messages to the sweeper component.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Component(logger.CompSweeper).Debug(msg, append([]any{"event", "cron." + msg}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	attrs := []any{"event", "cron." + msg}
	if err != nil {
		attrs = append(attrs, "err", err.Error())
	}
	logger.Component(logger.CompSweeper).Error(msg, append(attrs, keysAndValues...)...)
}
