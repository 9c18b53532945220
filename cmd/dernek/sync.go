package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
)

var pullSince int64

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the change journal with the remote service",
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Deliver pending local changes to the remote",
	Long: `Push unsynced change journal entries to the remote sync service.

Entries are delivered oldest first, up to the configured batch size. Rows
the remote acknowledges are marked synced; everything else stays pending
and is retried on the next push. A partially failed push is normal - rerun
push to retry.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		j := journal.New(s)
		syncer := newSyncer(cfg, s, j)

		res, err := syncer.Push(context.Background(), cfg.Tenant.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during push: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Push complete: synced=%d failed=%d\n", res.Synced, res.Failed)
		for _, msg := range res.Errors {
			fmt.Printf("  %s\n", msg)
		}
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch remote changes and apply them locally",
	Long: `Pull remote-originated changes newer than --since and apply them
to the local domain tables.

Applying is idempotent: re-pulling an already applied change is harmless.
Unknown tables and malformed payloads are skipped, not fatal.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		j := journal.New(s)
		syncer := newSyncer(cfg, s, j)
		ctx := context.Background()

		batch, err := syncer.Pull(ctx, cfg.Tenant.ID, pullSince)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during pull: %v\n", err)
			os.Exit(1)
		}

		applied, err := syncer.Apply(ctx, cfg.Tenant.ID, batch.Changes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during apply: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Pull complete: received=%d applied=%d\n", len(batch.Changes), applied)
		if batch.LatestVersion > 0 {
			fmt.Printf("Next cursor: %d\n", batch.LatestVersion)
		}
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show journal delivery status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		j := journal.New(s)
		pending, total, err := j.Counts(context.Background(), cfg.Tenant.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Tenant:  %s\n", cfg.Tenant.ID)
		fmt.Printf("Store:   %s\n", cfg.Store.Path)
		fmt.Printf("Journal: %d pending / %d total\n", pending, total)
	},
}

func init() {
	syncPullCmd.Flags().Int64Var(&pullSince, "since", 0, "version cursor to pull from")

	syncCmd.AddCommand(syncPushCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncStatusCmd)
}
