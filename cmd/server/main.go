// Package main is the entrypoint for the Shopfloor API server.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopfloor/shopfloor/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// migrationsDir is resolved relative to the working directory.
	migrationsDir = "migrations"
	envFile       = ".env"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopfloor",
		Short:         "Production job and task tracking server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&migrationsDir, "migrations", migrationsDir, "directory holding SQL migrations")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "optional dotenv file; variables already set win")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newJobsCmd())
	return root
}

// loadConfig loads configuration and installs the default logger. A missing
// env file is not an error.
func loadConfig(stdout io.Writer) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log, stdout))
	return cfg, nil
}

// newLogger writes JSON records to w, and also to a rotating file when
// cfg.File is set.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if cfg.File != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level}))
}
