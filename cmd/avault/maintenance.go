package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/asset-vault/internal/report"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Prune unused assets and compact the database",
	Long: `Optimize the database:

- Remove assets not accessed within the unused retention window (default
  30 days) that have never been used and that nothing depends on
- VACUUM and ANALYZE
- Drop usage events older than the event retention window (default 180 days)
- Rebuild the full-text index

Retention windows are read from retention.unused and retention.events.`,
	Args: cobra.NoArgs,
	RunE: runOptimize,
}

var backupCmd = &cobra.Command{
	Use:   "backup [path]",
	Short: "Copy the database to a backup file",
	Long: `Copy the database to a backup file. Without a path the backup is written
to backups/<database>-<timestamp>.db next to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Replace the database with a backup file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	rootCmd.AddCommand(optimizeCmd, backupCmd, restoreCmd)

	optimizeCmd.Flags().StringP("format", "f", "text", "Output format: text, json or yaml")
	restoreCmd.Flags().Bool("yes", false, "Confirm replacing the current database")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	events := openEventLogger()
	defer events.Close()

	r, err := db.Optimize(cmd.Context())
	if err != nil {
		events.LogError(report.EventOptimize, "", err)
		return err
	}
	events.LogOptimize(r)

	if format != "text" {
		return writeStructured(cmd.OutOrStdout(), format, r)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Assets:          %d -> %d\n", r.InitialAssetCount, r.FinalAssetCount)
	fmt.Fprintf(out, "Removed:         %d (%s memory)\n", len(r.RemovedAssets), util.FormatBytes(r.MemorySaved))
	fmt.Fprintf(out, "Events pruned:   %s\n", util.FormatCount(r.EventsPruned))
	fmt.Fprintf(out, "Reclaimed:       %s\n", util.FormatBytes(r.BytesReclaimed))
	fmt.Fprintf(out, "Duration:        %v\n", r.Duration.Round(time.Millisecond))
	for id, msg := range r.FailedAssets {
		util.WarnLog("Not removed: %s: %s", id, msg)
	}
	return nil
}

// defaultBackupPath names a backup after the database and the current time
func defaultBackupPath(dbPath string, now time.Time) string {
	base := filepath.Base(dbPath)
	name := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join("backups", fmt.Sprintf("%s-%s.db", name, now.Format("20060102-150405")))
}

func runBackup(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	events := openEventLogger()
	defer events.Close()

	path := defaultBackupPath(db.Config().DatabasePath, time.Now())
	if len(args) == 1 {
		path = args[0]
	}

	start := time.Now()
	n, err := db.BackupToFile(cmd.Context(), path)
	events.LogBackup(report.EventBackup, path, n, time.Since(start), err)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("restore replaces %s; pass --yes to confirm", GetConfigString("db", "vault.db"))
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	events := openEventLogger()
	defer events.Close()

	start := time.Now()
	size, _ := util.FileSize(afero.NewOsFs(), args[0])
	err = db.RestoreFromFile(cmd.Context(), args[0])
	events.LogBackup(report.EventRestore, args[0], size, time.Since(start), err)
	if err != nil {
		return err
	}
	util.SuccessLog("Restored %s from %s", db.Config().DatabasePath, args[0])
	return nil
}
