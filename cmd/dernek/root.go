package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/config"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/domain"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/store"
	syncpkg "github.com/Growth-Sheriff/dernekv1-sub000/internal/sync"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dernek",
	Short: "Association data store: change journal, sync, and backups",
	Long: `dernek manages the local association database.

Domain writes land in a local SQLite store together with a change journal
entry. The sync commands deliver pending journal entries to the remote
service and apply remote changes locally; the backup commands take and
restore consistent snapshots of the whole store.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./dernek.yaml or ~/.dernek/dernek.yaml)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(daemonCmd)
}

// loadConfig resolves configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the database and ensures the schema exists, or exits.
// The caller must Close the returned store.
func openStore(cfg *config.Config) *store.Store {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return s
}

// newSyncer wires the journal, the domain appliers, and the remote client.
func newSyncer(cfg *config.Config, s *store.Store, j *journal.Journal) syncpkg.Syncer {
	registry := syncpkg.NewRegistry(
		domain.MemberApplier{Store: s},
		domain.DuesApplier{Store: s},
		domain.CashAccountApplier{Store: s},
		domain.LedgerApplier{Store: s},
	)
	return syncpkg.New(j, registry, syncpkg.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Token:     cfg.Remote.Token,
		BatchSize: cfg.Sync.BatchSize,
	})
}
