package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/backup"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/config"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/daemon"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/dashboard"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the periodic sync and auto-backup loop",
	Long: `Run dernek as a long-lived process.

The daemon pushes pending journal entries and pulls remote changes on an
interval, checks the auto-backup policy, and (when dashboard.port is set)
serves a WebSocket feed of sync and backup events. Stop with SIGINT or
SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		logger := daemonLogger(cfg)

		j := journal.New(s)
		syncer := newSyncer(cfg, s, j)
		coordinator := backup.New(s, logger)

		var dash *dashboard.Server
		if cfg.Dashboard.Port > 0 {
			dash = dashboard.NewServer(cfg.Dashboard.Port, logger)
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer dash.Stop()
		}

		d, err := daemon.New(syncer, j, coordinator, dash, &daemon.Config{
			TenantID:            cfg.Tenant.ID,
			SyncInterval:        cfg.Sync.Interval,
			BackupCheckInterval: cfg.Backup.CheckInterval,
			BackupDir:           cfg.Backup.Dir,
			Logger:              logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
			os.Exit(1)
		}
	},
}

// daemonLogger logs to the configured rotating file, or stderr when no
// file is set.
func daemonLogger(cfg *config.Config) *log.Logger {
	if cfg.Log.File == "" {
		return log.New(os.Stderr, "[dernek] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}, "[dernek] ", log.LstdFlags)
}
