package bot

import (
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/akibot/core/config"
	coredatabase "github.com/m3rciful/akibot/core/database"
	"github.com/m3rciful/akibot/game/session"
	"github.com/m3rciful/akibot/game/storage"
)

const defaultLanguage = "pt"

// GameConfig tunes the session lifecycle.
type GameConfig struct {
	TimeoutSeconds         int     `yaml:"timeout_seconds" envconfig:"GAME_TIMEOUT_SECONDS"`
	GuessThreshold         float64 `yaml:"guess_threshold" envconfig:"GAME_GUESS_THRESHOLD"`
	CleanupIntervalSeconds int     `yaml:"cleanup_interval_seconds" envconfig:"GAME_CLEANUP_INTERVAL_SECONDS"`
	// Language is the Akinator region, "pt" by default.
	Language string `yaml:"language" envconfig:"GAME_LANGUAGE"`
	// ChildMode filters adult characters out of the games.
	ChildMode bool `yaml:"child_mode" envconfig:"GAME_CHILD_MODE"`
	// AkinatorURL overrides the regional Akinator host.
	AkinatorURL string `yaml:"akinator_url" envconfig:"AKINATOR_URL"`
}

// Timeout returns the session idle timeout.
func (g GameConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// CleanupInterval returns the sweeper period.
func (g GameConfig) CleanupInterval() time.Duration {
	return time.Duration(g.CleanupIntervalSeconds) * time.Second
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Storage  storage.Config      `yaml:"storage"`
	Redis    storage.RedisConfig `yaml:"redis"`
	Game     GameConfig          `yaml:"game"`
	Metrics  MetricsConfig       `yaml:"metrics"`
}

// LoadConfig reads path, applies environment overrides and validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Storage.UsesSQL() {
		c.Database.Driver = c.Storage.DriverName()
	}
	if c.Storage.DriverName() == storage.DriverRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when storage.driver is 'redis'")
	}

	if c.Game.TimeoutSeconds < 0 || c.Game.CleanupIntervalSeconds < 0 {
		return fmt.Errorf("game.timeout_seconds and game.cleanup_interval_seconds must be >= 0")
	}
	if c.Game.TimeoutSeconds == 0 {
		c.Game.TimeoutSeconds = int(session.DefaultTimeout / time.Second)
	}
	if c.Game.CleanupIntervalSeconds == 0 {
		c.Game.CleanupIntervalSeconds = int(session.DefaultCleanupInterval / time.Second)
	}
	if c.Game.Language == "" {
		c.Game.Language = defaultLanguage
	}
	if c.Game.GuessThreshold == 0 {
		c.Game.GuessThreshold = session.DefaultGuessThreshold
	}
	if c.Game.GuessThreshold < 0 || c.Game.GuessThreshold > 100 {
		return fmt.Errorf("game.guess_threshold must be within 0..100, got %v", c.Game.GuessThreshold)
	}
	return nil
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// DatabaseConfig returns the SQL settings, or nil when storage needs no database.
func (c *Config) DatabaseConfig() *coredatabase.Config {
	if !c.Storage.UsesSQL() {
		return nil
	}
	return &c.Database
}
