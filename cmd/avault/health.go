package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Aliases: []string{"doctor"},
	Short:   "Check database integrity and the environment",
	Long: `Run diagnostic checks on the asset database.

This command checks:
- SQLite version
- Database file accessibility
- Integrity and foreign key consistency
- Assets whose file no longer exists
- Time since the last vacuum
- Disk space next to the database
- The audit event directory, when configured

The command fails when a critical check fails.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

// staleVacuumAge is how long without a vacuum before health warns
const staleVacuumAge = 30 * 24 * time.Hour

func runHealth(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== Asset Vault Health Check ===")
	util.InfoLog("")

	dbPath := viper.GetString("db")
	results := []checkResult{checkDatabaseFile(dbPath)}

	db, err := openStore()
	if err != nil {
		results = append(results, checkResult{name: "Database", error: true, message: err.Error()})
		return printResults(results)
	}
	defer db.Close()

	events := openEventLogger()
	defer events.Close()

	ctx := cmd.Context()
	results = append(results, checkSQLite(ctx, db))

	report, err := db.HealthCheck(ctx)
	if err != nil {
		results = append(results, checkResult{name: "Health check", error: true, message: err.Error()})
		return printResults(results)
	}
	events.LogHealth(report)

	results = append(results,
		checkIntegrity(report),
		checkForeignKeys(report),
		checkOrphans(report),
		checkVacuum(report, time.Now()),
		checkDiskSpace(filepath.Dir(db.Config().DatabasePath), "database"),
	)
	if dir := GetConfigString("event-log", ""); dir != "" {
		results = append(results, checkEventLogDirectory(dir))
	}

	err = printResults(results)

	if len(report.Recommendations) > 0 {
		util.InfoLog("")
		util.InfoLog("Recommendations:")
		for _, rec := range report.Recommendations {
			util.InfoLog("  - %s", rec)
		}
	}
	return err
}

func printResults(results []checkResult) error {
	util.InfoLog("")
	util.InfoLog("=== Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed.")
		return fmt.Errorf("health check failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings.")
	} else {
		util.SuccessLog("✅ All checks passed.")
	}
	return nil
}

// checkSQLite reports the embedded SQLite version
func checkSQLite(ctx context.Context, db *store.Store) checkResult {
	version, err := db.SQLiteVersion(ctx)
	if err != nil || version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}
	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabaseFile verifies the database path before it is opened
func checkDatabaseFile(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (created by this check)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	return checkResult{
		name:    "Database",
		message: fmt.Sprintf("%s (%s)", dbPath, util.FormatBytes(info.Size())),
	}
}

func checkIntegrity(r *store.HealthReport) checkResult {
	if !r.IntegrityOK {
		return checkResult{name: "Integrity", error: true, message: r.IntegrityMessage}
	}
	return checkResult{
		name:    "Integrity",
		message: fmt.Sprintf("ok (%d tables, %d indexes)", r.TableCount, r.IndexCount),
	}
}

func checkForeignKeys(r *store.HealthReport) checkResult {
	if n := len(r.ForeignKeyViolations); n > 0 {
		return checkResult{
			name:    "Foreign keys",
			error:   true,
			message: fmt.Sprintf("%d violations: %s", n, strings.Join(r.ForeignKeyViolations, ", ")),
		}
	}
	return checkResult{name: "Foreign keys", message: "consistent"}
}

// checkOrphans warns about assets whose file is gone. The database itself is
// fine, so this is never an error.
func checkOrphans(r *store.HealthReport) checkResult {
	n := len(r.OrphanedAssets)
	if n == 0 {
		return checkResult{name: "Asset files", message: "all present"}
	}
	shown := r.OrphanedAssets
	if len(shown) > 5 {
		shown = shown[:5]
	}
	msg := fmt.Sprintf("%d missing: %s", n, strings.Join(shown, ", "))
	if n > len(shown) {
		msg += fmt.Sprintf(" and %d more", n-len(shown))
	}
	return checkResult{name: "Asset files", warning: true, message: msg}
}

func checkVacuum(r *store.HealthReport, now time.Time) checkResult {
	if r.LastVacuum == nil {
		return checkResult{name: "Vacuum", warning: true, message: "never run (use avault optimize)"}
	}
	if now.Sub(*r.LastVacuum) > staleVacuumAge {
		return checkResult{
			name:    "Vacuum",
			warning: true,
			message: fmt.Sprintf("last run %s", util.FormatAgo(r.LastVacuum)),
		}
	}
	return checkResult{name: "Vacuum", message: fmt.Sprintf("last run %s", util.FormatAgo(r.LastVacuum))}
}

// checkEventLogDirectory verifies the audit directory is writable
func checkEventLogDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Event log directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Event log directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".avault_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Event log directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// A vacuum needs room for a full copy of the database
	warning := false
	warningMsg := ""
	if availBytes < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 95 {
		warning = true
		warningMsg = " (>95% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", util.FormatBytes(int64(availBytes)), warningMsg),
	}
}
