package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/config"
	"droplet_console/internal/db"
	"droplet_console/internal/logger"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "droplet-console",
	Short: "Self-service DigitalOcean droplet console with prepaid billing.",
	Long: `droplet-console serves a JSON API through which users buy, run and
destroy DigitalOcean droplets against a prepaid balance, manage cloud
firewalls, and administrators manage users, roles and server templates.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log format (console, json)")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, sweepCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs: configuration, a logger and the database.
type env struct {
	cfg config.Config
	log *zap.Logger
	db  *gorm.DB
}

func bootstrap() (*env, error) {
	cfg, dotenv, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if !dotenv {
		log.Debug("no .env file found, using process environment")
	}

	gdb, err := db.Connect(cfg.DSN, log)
	if err != nil {
		log.Error("database unavailable", zap.Error(err))
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: gdb}, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync(e.log)

		if err := db.AutoMigrate(e.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		e.log.Info("schema migrated")
		return nil
	},
}
