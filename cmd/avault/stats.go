package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show table counts, disk usage and estimated memory",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show usage analytics for the last 30 days",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Show database size and query performance",
	Args:  cobra.NoArgs,
	RunE:  runPerf,
}

func init() {
	rootCmd.AddCommand(statsCmd, usageCmd, perfCmd)

	for _, c := range []*cobra.Command{statsCmd, usageCmd, perfCmd} {
		c.Flags().StringP("format", "f", "text", "Output format: text, json or yaml")
	}
}

type statsView struct {
	Stats  *store.DatabaseStats     `json:"stats" yaml:"stats"`
	Memory *store.MemoryUsageReport `json:"memory" yaml:"memory"`
}

func runStats(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetDatabaseStats(cmd.Context())
	if err != nil {
		return err
	}
	memory, err := db.GetMemoryUsage(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != "text" {
		return writeStructured(out, format, statsView{Stats: stats, Memory: memory})
	}

	fmt.Fprintf(out, "Database:      %s (%s)\n", stats.DatabasePath, util.FormatBytes(stats.DatabaseSize))
	fmt.Fprintf(out, "Assets:        %s\n", util.FormatCount(stats.AssetCount))
	fmt.Fprintf(out, "Collections:   %s\n", util.FormatCount(stats.CollectionCount))
	fmt.Fprintf(out, "Dependencies:  %s\n", util.FormatCount(stats.DependencyCount))
	fmt.Fprintf(out, "Usage events:  %s\n", util.FormatCount(stats.UsageEventCount))
	fmt.Fprintf(out, "Disk usage:    %s\n", util.FormatBytes(stats.TotalDiskUsage))
	fmt.Fprintf(out, "Memory:        %s\n", util.FormatBytes(memory.TotalMemory))

	if len(stats.AssetTypeDistribution) > 0 {
		fmt.Fprintln(out, "\nBy type:")
		types := make([]string, 0, len(stats.AssetTypeDistribution))
		for t := range stats.AssetTypeDistribution {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "  %-12s %6d  %s\n", t, stats.AssetTypeDistribution[t],
				util.FormatBytes(memory.ByType[store.AssetType(t)]))
		}
	}

	if len(memory.LargestAssets) > 0 {
		fmt.Fprintln(out, "\nLargest in memory:")
		for _, a := range memory.LargestAssets {
			fmt.Fprintf(out, "  %-32s %s\n", a.AssetID, util.FormatBytes(a.Bytes))
		}
	}
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	usage, err := db.GetUsageAnalytics(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != "text" {
		return writeStructured(out, format, usage)
	}
	if usage.TotalEvents == 0 {
		util.InfoLog("No usage recorded in the last 30 days")
		return nil
	}

	fmt.Fprintf(out, "Events: %s\n\n", util.FormatCount(usage.TotalEvents))
	fmt.Fprintln(out, "Most used:")
	for i, p := range usage.PopularAssets {
		fmt.Fprintf(out, "  %2d. %-32s %-24s %d\n", i+1, p.AssetID, p.Name, p.AccessCount)
	}

	fmt.Fprintln(out, "\nBy hour (UTC):")
	writeHistogram(out, usage.HourlyAccessPattern)
	return nil
}

// writeHistogram draws one bar per hour scaled to the busiest hour
func writeHistogram(w io.Writer, hours [24]int64) {
	var peak int64
	for _, n := range hours {
		peak = max(peak, n)
	}
	width := min(util.GetTerminalWidth()-16, 50)
	for h, n := range hours {
		bar := 0
		if peak > 0 && width > 0 {
			bar = int(n * int64(width) / peak)
		}
		fmt.Fprintf(w, "  %02d:00 %-*s %d\n", h, width, strings.Repeat("█", bar), n)
	}
}

func runPerf(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	perf, err := db.GetPerformanceMetrics(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != "text" {
		return writeStructured(out, format, perf)
	}

	fmt.Fprintf(out, "Database size:   %s (WAL %s)\n", util.FormatBytes(perf.DatabaseSizeBytes), util.FormatBytes(perf.WALFileSize))
	fmt.Fprintf(out, "Indexes:         %d\n", perf.IndexCount)
	fmt.Fprintf(out, "Queries:         %s (avg %s)\n", util.FormatCount(perf.QueryCount), util.FormatMillis(perf.AverageQueryTimeMS))
	fmt.Fprintf(out, "Plan cache hits: %.1f%%\n", perf.CacheHitRatio*100)
	fmt.Fprintf(out, "Connections:     %d pooled, %d in use, %d waits\n",
		perf.ConnectionPoolSize, perf.ActiveConnections, perf.ConnectionWaits)
	fmt.Fprintf(out, "Last vacuum:     %s\n", util.FormatAgo(perf.VacuumLastRun))

	if len(perf.TableSizes) > 0 {
		fmt.Fprintln(out, "\nRows per table:")
		tables := make([]string, 0, len(perf.TableSizes))
		for t := range perf.TableSizes {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Fprintf(out, "  %-20s %d\n", t, perf.TableSizes[t])
		}
	}
	return nil
}
