package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	concpool "github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/franz/asset-vault/internal/util"
)

// Recommendation thresholds
const (
	largeDatabaseBytes  = 1 << 30
	slowQueryAverageMS  = 10.0
	lowPlanHitRatio     = 0.8
	minPlanLookups      = 100
	largeEventLogEvents = 100000
	orphanCheckWorkers  = 8
)

// dataTables are reported in performance metrics
var dataTables = []string{"assets", "dependencies", "collections", "asset_collections", "usage_events", "maintenance_log"}

type foreignKeyViolation struct {
	Table  string        `db:"table"`
	RowID  sql.NullInt64 `db:"rowid"`
	Parent string        `db:"parent"`
	FKID   int           `db:"fkid"`
}

// HealthCheck verifies integrity and referential consistency, finds assets
// whose file no longer exists and suggests maintenance.
func (s *Store) HealthCheck(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{
		ForeignKeyViolations: []string{},
		OrphanedAssets:       []string{},
		Recommendations:      []string{},
	}

	var paths []assetPath
	var assetCount, eventCount int64

	err := s.withConn(ctx, "health check", func(c *PooledConn) error {
		var integrity []string
		if err := s.selectAll(ctx, c, &integrity, "PRAGMA integrity_check"); err != nil {
			return fmt.Errorf("integrity check query failed: %w", err)
		}
		report.IntegrityMessage = strings.Join(integrity, "; ")
		report.IntegrityOK = len(integrity) == 1 && integrity[0] == "ok"

		var violations []foreignKeyViolation
		if err := s.selectAll(ctx, c, &violations, "PRAGMA foreign_key_check"); err != nil {
			return fmt.Errorf("foreign key check failed: %w", err)
		}
		for _, v := range violations {
			report.ForeignKeyViolations = append(report.ForeignKeyViolations,
				fmt.Sprintf("%s row %d references missing %s (constraint %d)", v.Table, v.RowID.Int64, v.Parent, v.FKID))
		}

		if err := s.get(ctx, c, &report.TableCount,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"); err != nil {
			return err
		}
		if err := s.get(ctx, c, &report.IndexCount,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%'"); err != nil {
			return err
		}
		if err := s.get(ctx, c, &assetCount, "SELECT COUNT(*) FROM assets"); err != nil {
			return err
		}
		if err := s.get(ctx, c, &eventCount, "SELECT COUNT(*) FROM usage_events"); err != nil {
			return err
		}

		last, err := s.lastVacuum(ctx, c)
		if err != nil {
			return err
		}
		report.LastVacuum = last

		return s.selectAll(ctx, c, &paths,
			"SELECT id, file_path FROM assets WHERE file_path <> '' ORDER BY id")
	})
	if err != nil {
		return nil, err
	}

	report.OrphanedAssets = s.findOrphans(paths)
	report.DatabaseSize = s.databaseSize()

	perf := s.stats.snapshot()
	report.Recommendations = recommend(report, perf, assetCount, eventCount)

	if report.Healthy() {
		util.DebugLog("Health check passed (%d tables, %d indexes)", report.TableCount, report.IndexCount)
	} else {
		util.WarnLog("Health check found problems: integrity=%s, %d foreign key violations, %d orphaned assets",
			report.IntegrityMessage, len(report.ForeignKeyViolations), len(report.OrphanedAssets))
	}
	return report, nil
}

type assetPath struct {
	ID       string `db:"id"`
	FilePath string `db:"file_path"`
}

// findOrphans stats every asset path concurrently and returns the IDs whose
// file is gone, sorted.
func (s *Store) findOrphans(paths []assetPath) []string {
	p := concpool.NewWithResults[string]().WithMaxGoroutines(orphanCheckWorkers)
	for _, row := range paths {
		p.Go(func() string {
			exists, err := afero.Exists(s.assetFs, row.FilePath)
			if err != nil {
				util.WarnLog("Cannot check %s for asset %s: %v", row.FilePath, row.ID, err)
				return ""
			}
			if exists {
				return ""
			}
			return row.ID
		})
	}

	orphans := []string{}
	for _, id := range p.Wait() {
		if id != "" {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

func recommend(report *HealthReport, perf statsSnapshot, assetCount, eventCount int64) []string {
	recs := []string{}
	if !report.IntegrityOK {
		recs = append(recs, "Integrity check failed: restore the database from a recent backup")
	}
	if n := len(report.ForeignKeyViolations); n > 0 {
		recs = append(recs, fmt.Sprintf("Remove %d rows that reference missing records", n))
	}
	if n := len(report.OrphanedAssets); n > 0 {
		recs = append(recs, fmt.Sprintf("Re-import or remove %d assets whose files are missing", n))
	}
	if report.DatabaseSize > largeDatabaseBytes {
		recs = append(recs, fmt.Sprintf("Database is %s: run optimize to prune unused assets and compact storage",
			util.FormatBytes(report.DatabaseSize)))
	}
	if perf.AverageQueryMS > slowQueryAverageMS {
		recs = append(recs, fmt.Sprintf("Average query time is %s: add indexes for frequently filtered fields",
			util.FormatMillis(perf.AverageQueryMS)))
	}
	if perf.PlanHits+perf.PlanMisses >= minPlanLookups && perf.PlanHitRatio() < lowPlanHitRatio {
		recs = append(recs, fmt.Sprintf("Query plan cache hit ratio is %.0f%%: callers issue many distinct query texts",
			perf.PlanHitRatio()*100))
	}
	if report.LastVacuum == nil && assetCount > 0 {
		recs = append(recs, "No vacuum has been recorded: run optimize")
	}
	if eventCount > largeEventLogEvents {
		recs = append(recs, fmt.Sprintf("Usage log holds %s events: shorten the event retention window",
			util.FormatCount(eventCount)))
	}
	return recs
}

// GetPerformanceMetrics reports file sizes, row counts and measured query
// statistics.
func (s *Store) GetPerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error) {
	m := &PerformanceMetrics{
		TableSizes:         make(map[string]int64, len(dataTables)),
		ConnectionPoolSize: s.pool.Size(),
	}

	err := s.withConn(ctx, "performance metrics", func(c *PooledConn) error {
		for _, table := range dataTables {
			var n int64
			if err := s.get(ctx, c, &n, "SELECT COUNT(*) FROM "+table); err != nil {
				return fmt.Errorf("failed to count %s: %w", table, err)
			}
			m.TableSizes[table] = n
		}
		if err := s.get(ctx, c, &m.IndexCount,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%'"); err != nil {
			return err
		}
		last, err := s.lastVacuum(ctx, c)
		if err != nil {
			return err
		}
		m.VacuumLastRun = last
		// Counted while this call holds a connection
		m.ActiveConnections = s.pool.Active()
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := s.stats.snapshot()
	m.AverageQueryTimeMS = snap.AverageQueryMS
	m.QueryCount = snap.QueryCount
	m.CacheHitRatio = snap.PlanHitRatio()
	m.ConnectionWaits = snap.ConnectionWaits
	m.SlowestQueries = snap.Slowest
	m.DatabaseSizeBytes = s.databaseSize()
	m.WALFileSize = s.walSize()
	return m, nil
}
