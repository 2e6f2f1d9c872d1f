package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
)

// SummaryReport is a point-in-time view of the vault
type SummaryReport struct {
	GeneratedAt time.Time

	Stats       *store.DatabaseStats
	Memory      *store.MemoryUsageReport
	Usage       *store.UsageAnalytics
	Health      *store.HealthReport
	Performance *store.PerformanceMetrics

	// Metadata
	DatabasePath  string
	EventLogPath  string
	SQLiteVersion string
}

// GenerateSummaryReport gathers statistics, usage, health and performance
// from the store. Sections that fail to load are left nil and logged.
func GenerateSummaryReport(ctx context.Context, db *store.Store, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		DatabasePath: db.Config().DatabasePath,
		EventLogPath: eventLogPath,
	}

	stats, err := db.GetDatabaseStats(ctx)
	if err != nil {
		// Without the basic counts there is nothing worth writing
		return nil, fmt.Errorf("failed to gather database stats: %w", err)
	}
	report.Stats = stats

	if report.Memory, err = db.GetMemoryUsage(ctx); err != nil {
		util.WarnLog("Report: memory usage unavailable: %v", err)
	}
	if report.Usage, err = db.GetUsageAnalytics(ctx); err != nil {
		util.WarnLog("Report: usage analytics unavailable: %v", err)
	}
	if report.Health, err = db.HealthCheck(ctx); err != nil {
		util.WarnLog("Report: health check failed: %v", err)
	}
	if report.Performance, err = db.GetPerformanceMetrics(ctx); err != nil {
		util.WarnLog("Report: performance metrics unavailable: %v", err)
	}
	if report.SQLiteVersion, err = db.SQLiteVersion(ctx); err != nil {
		util.DebugLog("Report: could not read SQLite version: %v", err)
	}

	return report, nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Asset Vault - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.SQLiteVersion != "" {
		md.WriteString(fmt.Sprintf("**SQLite:** %s\n\n", report.SQLiteVersion))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	if s := report.Stats; s != nil {
		md.WriteString("## 📊 Overview\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Assets | %s |\n", util.FormatCount(s.AssetCount)))
		md.WriteString(fmt.Sprintf("| Collections | %s |\n", util.FormatCount(s.CollectionCount)))
		md.WriteString(fmt.Sprintf("| Dependencies | %s |\n", util.FormatCount(s.DependencyCount)))
		md.WriteString(fmt.Sprintf("| Usage Events | %s |\n", util.FormatCount(s.UsageEventCount)))
		md.WriteString(fmt.Sprintf("| Disk Usage | %s |\n", util.FormatBytes(s.TotalDiskUsage)))
		md.WriteString(fmt.Sprintf("| Database Size | %s |\n", util.FormatBytes(s.DatabaseSize)))
		md.WriteString("\n")

		if len(s.AssetTypeDistribution) > 0 {
			md.WriteString("### Assets by Type\n\n")
			md.WriteString("| Type | Count |\n")
			md.WriteString("|------|-------|\n")
			for _, typ := range sortedKeys(s.AssetTypeDistribution) {
				md.WriteString(fmt.Sprintf("| %s | %d |\n", typ, s.AssetTypeDistribution[typ]))
			}
			md.WriteString("\n")
		}
	}

	if m := report.Memory; m != nil && m.AssetCount > 0 {
		md.WriteString("## 🧠 Memory\n\n")
		md.WriteString(fmt.Sprintf("**Total estimated memory:** %s across %d assets\n\n",
			util.FormatBytes(m.TotalMemory), m.AssetCount))

		if len(m.LargestAssets) > 0 {
			md.WriteString("| Asset | Memory |\n")
			md.WriteString("|-------|--------|\n")
			for _, a := range m.LargestAssets {
				md.WriteString(fmt.Sprintf("| `%s` | %s |\n", truncatePath(a.AssetID, 60), util.FormatBytes(a.Bytes)))
			}
			md.WriteString("\n")
		}
	}

	if u := report.Usage; u != nil && u.TotalEvents > 0 {
		md.WriteString("## 📈 Usage (30 days)\n\n")
		md.WriteString(fmt.Sprintf("**Total events:** %s\n\n", util.FormatCount(u.TotalEvents)))

		if len(u.PopularAssets) > 0 {
			md.WriteString("| Asset | Name | Accesses |\n")
			md.WriteString("|-------|------|----------|\n")
			for _, p := range u.PopularAssets {
				md.WriteString(fmt.Sprintf("| `%s` | %s | %d |\n", p.AssetID, p.Name, p.AccessCount))
			}
			md.WriteString("\n")
		}

		md.WriteString("| Event | Count |\n")
		md.WriteString("|-------|-------|\n")
		for _, typ := range sortedKeys(u.EventTypeDistribution) {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", typ, u.EventTypeDistribution[typ]))
		}
		md.WriteString("\n")

		peak := 0
		for h, n := range u.HourlyAccessPattern {
			if n > u.HourlyAccessPattern[peak] {
				peak = h
			}
		}
		md.WriteString(fmt.Sprintf("**Busiest hour (UTC):** %02d:00\n\n", peak))
	}

	if h := report.Health; h != nil {
		md.WriteString("## 🩺 Health\n\n")
		if h.Healthy() {
			md.WriteString("**Status:** ✅ healthy\n\n")
		} else {
			md.WriteString("**Status:** ❌ problems found\n\n")
		}
		md.WriteString("| Check | Result |\n")
		md.WriteString("|-------|--------|\n")
		md.WriteString(fmt.Sprintf("| Integrity | %s |\n", h.IntegrityMessage))
		md.WriteString(fmt.Sprintf("| Foreign Key Violations | %d |\n", len(h.ForeignKeyViolations)))
		md.WriteString(fmt.Sprintf("| Orphaned Assets | %d |\n", len(h.OrphanedAssets)))
		md.WriteString(fmt.Sprintf("| Tables / Indexes | %d / %d |\n", h.TableCount, h.IndexCount))
		md.WriteString(fmt.Sprintf("| Last Vacuum | %s |\n", util.FormatAgo(h.LastVacuum)))
		md.WriteString("\n")

		if len(h.OrphanedAssets) > 0 {
			md.WriteString("### Orphaned Assets\n\n")
			for _, id := range h.OrphanedAssets {
				md.WriteString(fmt.Sprintf("- `%s`\n", id))
			}
			md.WriteString("\n")
		}

		if len(h.Recommendations) > 0 {
			md.WriteString("### ⚠️ Recommendations\n\n")
			for _, rec := range h.Recommendations {
				md.WriteString(fmt.Sprintf("- %s\n", rec))
			}
			md.WriteString("\n")
		}
	}

	if p := report.Performance; p != nil {
		md.WriteString("## ⚡ Performance\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Queries | %s |\n", util.FormatCount(p.QueryCount)))
		md.WriteString(fmt.Sprintf("| Average Query Time | %s |\n", util.FormatMillis(p.AverageQueryTimeMS)))
		md.WriteString(fmt.Sprintf("| Plan Cache Hit Ratio | %.1f%% |\n", p.CacheHitRatio*100))
		md.WriteString(fmt.Sprintf("| Connection Pool | %d (%d waits) |\n", p.ConnectionPoolSize, p.ConnectionWaits))
		md.WriteString(fmt.Sprintf("| WAL Size | %s |\n", util.FormatBytes(p.WALFileSize)))
		md.WriteString("\n")

		if len(p.SlowestQueries) > 0 {
			md.WriteString("### Slowest Queries\n\n")
			md.WriteString("| Time | Query |\n")
			md.WriteString("|------|-------|\n")
			for _, q := range p.SlowestQueries {
				md.WriteString(fmt.Sprintf("| %s | `%s` |\n", util.FormatMillis(q.DurationMS), truncatePath(q.Query, 80)))
			}
			md.WriteString("\n")
		}
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by avault - Asset Vault*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncatePath shortens long paths and queries from the middle, keeping
// both ends.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
