package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"droplet_console/internal/activity"
	"droplet_console/internal/credentials"
	"droplet_console/internal/db"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/droplets"
	"droplet_console/internal/firewalls"
	httpserver "droplet_console/internal/http"
	"droplet_console/internal/ledger"
	"droplet_console/internal/logger"
	"droplet_console/internal/scheduler"
	"droplet_console/internal/seed"
)

const shutdownTimeout = 15 * time.Second

// services wires the provider client and domain services over one database.
type services struct {
	store     *credentials.Store
	client    *digitalocean.Client
	droplets  *droplets.Service
	firewalls *firewalls.Service
	activity  *activity.Recorder
	ledger    *ledger.Ledger
}

func (e *env) services() *services {
	store := credentials.NewStore(e.db)
	client := digitalocean.NewClient(store,
		digitalocean.WithBaseURL(e.cfg.DOBaseURL),
		digitalocean.WithDefaultMaxRetries(e.cfg.DOMaxRetries),
		digitalocean.WithRateLimit(e.cfg.DORateLimitRPS),
		digitalocean.WithLogger(e.log),
	)
	return &services{
		store:     store,
		client:    client,
		droplets:  droplets.NewService(e.db, client, e.log),
		firewalls: firewalls.NewService(e.db, client, e.log),
		activity:  activity.NewRecorder(e.db, e.log),
		ledger:    ledger.New(e.db),
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate, seed and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync(e.log)

		if err := db.AutoMigrate(e.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if err := seed.FirstSetup(e.db, e.cfg.AdminEmail, e.cfg.AdminPassword, e.log); err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		svc := e.services()
		sched := scheduler.New(svc.droplets, svc.activity, e.log, e.cfg.SweepInterval)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
		defer sched.Stop()

		r := httpserver.NewRouter(httpserver.Deps{
			DB:          e.db,
			Log:         e.log,
			JWTSecret:   e.cfg.JWTSecret,
			DO:          svc.client,
			Credentials: svc.store,
			Droplets:    svc.droplets,
			Firewalls:   svc.firewalls,
			Activity:    svc.activity,
			Ledger:      svc.ledger,
		})
		srv := &http.Server{
			Addr:              ":" + e.cfg.AppPort,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			e.log.Info("server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		e.log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create default roles, the admin account and server templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync(e.log)

		if err := db.AutoMigrate(e.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return seed.FirstSetup(e.db, e.cfg.AdminEmail, e.cfg.AdminPassword, e.log)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mirror console-tagged droplets that have no local row, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync(e.log)

		res, err := e.services().droplets.Sweep(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "seen %d console droplets, repaired %d mirror rows\n", res.Seen, res.Repaired)
		return err
	},
}
