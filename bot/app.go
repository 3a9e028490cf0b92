// Package bot wires the guessing game into the Telegram runtime.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/akibot/core/bootstrap"
	corecmd "github.com/m3rciful/akibot/core/cmd"
	"github.com/m3rciful/akibot/core/logger"
	tg "github.com/m3rciful/akibot/core/telegram"
	"github.com/m3rciful/akibot/core/telegram/router"
	"github.com/m3rciful/akibot/game/akinator"
	"github.com/m3rciful/akibot/game/engine"
	"github.com/m3rciful/akibot/game/gate"
	"github.com/m3rciful/akibot/game/metrics"
	"github.com/m3rciful/akibot/game/session"
	"github.com/m3rciful/akibot/game/storage"
	"github.com/m3rciful/akibot/migrations"
)

// Deps overrides collaborators New would otherwise build from config.
type Deps struct {
	Repository storage.Repository
	Engines    engine.Factory
	// Admins defaults to Telegram chat membership, bound when the bot starts.
	Admins gate.AdminChecker
	// Registry receives the game metrics; a fresh registry when nil.
	Registry *prometheus.Registry
	// Now replaces time.Now in the session manager.
	Now func() time.Time
}

// App is the running game: storage, sessions, gate and Telegram handlers.
type App struct {
	cfg *Config

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	repo     storage.Repository
	manager  *session.Manager
	gate     *gate.Gate
	handlers *Handlers
	admins   *TelegramAdmins

	mu         sync.Mutex
	stopSweep  context.CancelFunc
	sweepDone  chan struct{}
	closeOnce  sync.Once
	closeError error
}

// New assembles the app. Deps.Repository is required.
func New(cfg *Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	if deps.Repository == nil {
		return nil, errors.New("bot: nil repository")
	}

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	mt := metrics.New(reg)

	engines := deps.Engines
	if engines == nil {
		engines = akinator.Factory(akinator.Config{BaseURL: cfg.Game.AkinatorURL})
	}

	a := &App{cfg: cfg, registry: reg, metrics: mt, repo: deps.Repository}
	a.manager = session.NewManager(session.NewStore(), engines, session.Config{
		Timeout:        cfg.Game.Timeout(),
		GuessThreshold: cfg.Game.GuessThreshold,
		StartOptions: engine.StartOptions{
			Language:  cfg.Game.Language,
			ChildMode: cfg.Game.ChildMode,
			Theme:     engine.ThemeCharacters,
		},
	}, session.WithMetrics(mt), session.WithClock(deps.Now))

	admins := deps.Admins
	if admins == nil {
		a.admins = NewTelegramAdmins(nil)
		admins = a.admins
	}
	a.gate = gate.New(deps.Repository, admins, a.manager, mt)
	a.handlers = NewHandlers(a.manager, a.gate, deps.Repository)
	return a, nil
}

// Bootstrap implements the cmd bootstrap hook: logger, database,
// migrations and the configured repository.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   cfg.DatabaseConfig(),
		Migrations: migrations.FS,
	})
	if err != nil {
		return nil, err
	}
	repo, err := storage.Open(context.Background(), cfg.Storage, cfg.Redis, res.DB)
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, err
	}
	logger.Info(context.Background(), logger.CompStorage, "storage.open",
		slog.String("driver", cfg.Storage.DriverName()),
	)
	return New(cfg, Deps{Repository: repo})
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	if err := a.handlers.Register(reg); err != nil {
		return tg.RunOptions{}, err
	}
	cbOpts, textOpts := router.FallbacksFrom(a.handlers)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: onOwnerOnly,
	})
	routes = append(routes, router.CallbackRoute(reg, cbOpts))
	routes = append(routes, router.TextRoutes(reg, textOpts)...)

	return tg.RunOptions{
		Config:         a.cfg.CoreConfig(),
		Registry:       reg,
		Middlewares:    tg.DefaultMiddlewares(a.cfg.CoreConfig(), onRateLimited, a.metrics),
		Routes:         routes,
		AllowedUpdates: []string{"message", "callback_query"},
		OnStart:        a.onStart,
		OnStop:         a.onStop,
	}, nil
}

// Services implements cmd.ServiceProvider.
func (a *App) Services() []corecmd.Service {
	if a.cfg.Metrics.Listen == "" {
		return nil
	}
	return []corecmd.Service{metrics.NewServer(a.cfg.Metrics.Listen, a.registry)}
}

// Close releases the repository.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeError = a.repo.Close()
	})
	return a.closeError
}

// onStart binds the admin oracle to the bot and starts the sweeper, which
// notifies through the runtime's dispatcher.
func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	if a.admins != nil && rt.Bot != nil {
		a.admins.Bind(rt.Bot)
	}
	var notifier session.Notifier
	if rt.Bot != nil {
		notifier = NewNotifier(rt.Bot, rt.Dispatcher)
	}
	a.startSweeper(ctx, notifier)
	return nil
}

func (a *App) onStop(context.Context, tg.Runtime) error {
	a.stopSweeper()
	return nil
}

func (a *App) startSweeper(ctx context.Context, n session.Notifier) {
	sw := session.NewSweeper(a.manager, n, session.SweeperConfig{
		Interval: a.cfg.Game.CleanupInterval(),
		Message:  msgTimedOut,
	})
	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.stopSweep, a.sweepDone = cancel, done
	a.mu.Unlock()

	go func() {
		defer close(done)
		if err := sw.Run(sctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(sctx, logger.CompSweeper, "sweeper.stop", logger.Err(err))
		}
	}()
}

func (a *App) stopSweeper() {
	a.mu.Lock()
	cancel, done := a.stopSweep, a.sweepDone
	a.stopSweep, a.sweepDone = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
