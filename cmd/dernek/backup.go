package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/backup"
)

var cleanupMaxAgeDays int

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, restore, list, and prune store backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Take a consistent snapshot of the store",
	Long: `Create a backup of the whole local store.

The write-ahead log is checkpointed first, so the artifact contains every
committed transaction. A failed backup leaves no partial artifact behind.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		coordinator := backup.New(s, nil)
		artifact, err := coordinator.Create(context.Background(), cfg.Tenant.ID, cfg.Backup.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating backup: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Backup created: %s (%d bytes)\n", artifact.Path, artifact.Size)
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <artifact>",
	Short: "Restore the store from a backup artifact",
	Long: `Replace the live store with the given backup artifact.

The live file is kept in a safety copy until the swap succeeds; a failed
restore puts the original store back untouched. Restart the application
after a restore.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		coordinator := backup.New(s, nil)
		if err := coordinator.Restore(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error restoring backup: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Restore complete from %s\n", args[0])
		fmt.Println("Restart the application before resuming work.")
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup artifacts, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		coordinator := backup.New(s, nil)
		artifacts, err := coordinator.List(cfg.Backup.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing backups: %v\n", err)
			os.Exit(1)
		}

		if len(artifacts) == 0 {
			fmt.Printf("No backups in %s\n", cfg.Backup.Dir)
			return
		}
		for _, a := range artifacts {
			fmt.Printf("%s  %10d bytes  %s\n",
				a.CreatedAt.Format("2006-01-02 15:04:05"), a.Size, a.Filename)
		}
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backup artifacts older than --max-age-days",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		s := openStore(cfg)
		defer s.Close()

		maxAge := cleanupMaxAgeDays
		if maxAge <= 0 {
			maxAge = cfg.Backup.MaxAgeDays
		}

		coordinator := backup.New(s, nil)
		deleted, err := coordinator.Cleanup(cfg.Backup.Dir, maxAge)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning up backups: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Deleted %d backup(s) older than %d days\n", deleted, maxAge)
	},
}

func init() {
	backupCleanupCmd.Flags().IntVar(&cleanupMaxAgeDays, "max-age-days", 0,
		"age threshold in days (default: backup.max_age_days from config)")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupCleanupCmd)
}
