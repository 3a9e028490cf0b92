// Command akibot runs the Akinator Telegram bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/m3rciful/akibot/bot"
	"github.com/m3rciful/akibot/core/bootstrap"
	"github.com/m3rciful/akibot/core/buildinfo"
	corecmd "github.com/m3rciful/akibot/core/cmd"
	coredatabase "github.com/m3rciful/akibot/core/database"
	"github.com/m3rciful/akibot/core/logger"
	"github.com/m3rciful/akibot/game/storage"
	"github.com/m3rciful/akibot/migrations"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "akibot",
		Short:        "Akinator guessing game for Telegram",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			loadDotEnv()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")

	root.AddCommand(
		newRunCmd(opts),
		newMigrateCmd(opts),
		newStatsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadDotEnv reads .env when present; real environment variables win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot (default)",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runBot(opts)
		},
	}
}

func runBot(opts *rootOptions) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath:        opts.configPath,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := bot.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: bot.Bootstrap,
	})
}

func (o *rootOptions) load() (*bot.Config, error) {
	path, err := corecmd.Options{ConfigPath: o.configPath, DefaultConfigPath: defaultConfigPath}.ResolveConfigPath()
	if err != nil {
		return nil, err
	}
	return bot.LoadConfig(path)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back SQL migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{coredatabase.DirectionUp, coredatabase.DirectionDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := coredatabase.DirectionUp
			if len(args) == 1 {
				direction = strings.ToLower(args[0])
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			db := cfg.DatabaseConfig()
			if db == nil {
				return fmt.Errorf("storage.driver %q keeps no SQL schema", cfg.Storage.DriverName())
			}
			if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			if err := coredatabase.Migrate(*db, migrations.FS, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", direction)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply; 0 means all")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number of known users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			res, err := bootstrap.Run(bootstrap.Options{
				Config:     cfg.CoreConfig(),
				Database:   cfg.DatabaseConfig(),
				Migrations: migrations.FS,
			})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			repo, err := storage.Open(ctx, cfg.Storage, cfg.Redis, res.DB)
			if err != nil {
				if res.DB != nil {
					_ = res.DB.Close()
				}
				return err
			}
			defer func() { _ = repo.Close() }()

			users, err := repo.CountUsers(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "storage: %s\nusers: %d\n", cfg.Storage.DriverName(), users)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}
