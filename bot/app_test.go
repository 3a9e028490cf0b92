package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corecmd "github.com/m3rciful/akibot/core/cmd"
	coreconfig "github.com/m3rciful/akibot/core/config"
	tg "github.com/m3rciful/akibot/core/telegram"
	"github.com/m3rciful/akibot/game/engine/enginetest"
	"github.com/m3rciful/akibot/game/storage"
)

var (
	_ corecmd.TelegramApp     = (*App)(nil)
	_ corecmd.ServiceProvider = (*App)(nil)
	_ corecmd.ConfigCarrier   = (*Config)(nil)
)

func TestNewRequiresRepository(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.Error(t, err)
	_, err = New(nil, Deps{Repository: storage.NewMemory()})
	assert.Error(t, err)
}

func TestTelegramRunOptions(t *testing.T) {
	f := newFixture(t, nil)
	opts, err := f.app.TelegramRunOptions()
	require.NoError(t, err)

	cmds := opts.Registry.Commands()
	for _, name := range []string{"/start", "/jogar", "/cancelar", "/bloquear", "/desbloquear", "/stats"} {
		assert.Contains(t, cmds, name)
	}
	assert.True(t, cmds["/stats"].AdminOnly)
	assert.ElementsMatch(t, []string{cbAnswer, cbVerdict}, opts.Registry.ListCallbacks())

	var endpoints []any
	for _, r := range opts.Routes {
		endpoints = append(endpoints, r.Endpoint)
	}
	for _, ep := range []string{"/play", "/cancel", "/lock", "/unlock"} {
		assert.Contains(t, endpoints, ep)
	}
	assert.NotEmpty(t, opts.Middlewares)
	assert.NotNil(t, opts.OnStart)
	assert.NotNil(t, opts.OnStop)
}

func TestServices(t *testing.T) {
	f := newFixture(t, nil)
	assert.Empty(t, f.app.Services())

	f.app.cfg.Metrics.Listen = "127.0.0.1:0"
	svcs := f.app.Services()
	require.Len(t, svcs, 1)
	assert.Equal(t, "metrics", svcs[0].Name())
}

func TestSweeperLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	clk := &clock{now: time.Now()}
	cfg := testConfig()
	cfg.Game.CleanupIntervalSeconds = 1
	app, err := New(cfg, Deps{
		Repository: storage.NewMemory(),
		Engines:    enginetest.Factory(gameEngine()),
		Registry:   reg,
		Now:        clk.Now,
	})
	require.NoError(t, err)

	_, err = app.manager.Create(context.Background(), group, owner)
	require.NoError(t, err)
	clk.Advance(121 * time.Second)

	require.NoError(t, app.onStart(context.Background(), tg.Runtime{}))
	require.Eventually(t, func() bool { return app.manager.Len() == 0 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, app.onStop(context.Background(), tg.Runtime{}))
	// a second stop is a no-op
	require.NoError(t, app.onStop(context.Background(), tg.Runtime{}))

	expected := `
# HELP akibot_sweeper_evictions_total Sessions evicted by the expiry sweeper.
# TYPE akibot_sweeper_evictions_total counter
akibot_sweeper_evictions_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "akibot_sweeper_evictions_total"))
}

func TestCloseReleasesRepository(t *testing.T) {
	repo := storage.NewMemory()
	f := newFixture(t, repo)
	require.NoError(t, f.app.Close())
	require.NoError(t, f.app.Close())
	assert.ErrorIs(t, repo.SaveUser(context.Background(), owner), storage.ErrClosed)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: \"123:abc\"\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, storage.DriverMemory, cfg.Storage.DriverName())
	assert.Equal(t, 120*time.Second, cfg.Game.Timeout())
	assert.Equal(t, 60*time.Second, cfg.Game.CleanupInterval())
	assert.Equal(t, 80.0, cfg.Game.GuessThreshold)
	assert.Equal(t, "pt", cfg.Game.Language)
	assert.Nil(t, cfg.DatabaseConfig())
}

func TestLoadConfigSQLite(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
storage:
  driver: sqlite
database:
  path: /tmp/akibot.db
game:
  timeout_seconds: 30
  guess_threshold: 90
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	db := cfg.DatabaseConfig()
	require.NotNil(t, db)
	assert.Equal(t, storage.DriverSQLite, db.DriverName())
	assert.Equal(t, 30*time.Second, cfg.Game.Timeout())
	assert.Equal(t, 90.0, cfg.Game.GuessThreshold)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("GAME_TIMEOUT_SECONDS", "45")
	t.Setenv("STORAGE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := LoadConfig(writeConfig(t, "telegram:\n  token: \"123:abc\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Game.Timeout())
	assert.Equal(t, storage.DriverRedis, cfg.Storage.DriverName())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"threshold":     "telegram:\n  token: x\ngame:\n  guess_threshold: 150\n",
		"driver":        "telegram:\n  token: x\nstorage:\n  driver: mongo\n",
		"redis no addr": "telegram:\n  token: x\nstorage:\n  driver: redis\n",
		"negative":      "telegram:\n  token: x\ngame:\n  timeout_seconds: -1\n",
		"no token":      "game:\n  timeout_seconds: 10\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSampleConfigPersistsLocks(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	cfg, err := LoadConfig(filepath.Join("..", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, storage.DriverSQLite, cfg.Storage.DriverName())
	db := cfg.DatabaseConfig()
	require.NotNil(t, db)
	assert.Equal(t, "akibot.db", db.Path)
}
