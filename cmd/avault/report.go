package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/asset-vault/internal/report"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from the database",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Asset, collection and dependency counts
- Estimated memory and the largest assets
- Usage over the last 30 days
- Health check results and recommendations
- Query performance

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log-path", "", "Audit event file to reference in the report (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== Generating Summary Report ===")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log-path")

	util.InfoLog("Analyzing data...")
	summary, err := report.GenerateSummaryReport(cmd.Context(), db, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join("artifacts", "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Report saved to: %s", outputPath)
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Assets: %s", util.FormatCount(summary.Stats.AssetCount))
	util.InfoLog("  Disk usage: %s", util.FormatBytes(summary.Stats.TotalDiskUsage))
	if summary.Usage != nil {
		util.InfoLog("  Usage events (30 days): %s", util.FormatCount(summary.Usage.TotalEvents))
	}
	if summary.Health != nil && !summary.Health.Healthy() {
		util.WarnLog("  Health: problems found, run avault health for details")
	}

	return nil
}
