package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/schollz/progressbar/v3"

	"github.com/franz/asset-vault/internal/util"
)

// Maintenance operations recorded in maintenance_log
const (
	opOptimize          = "optimize"
	opIncrementalVacuum = "incremental_vacuum"
	opBackup            = "backup"
	opRestore           = "restore"
)

const unusedAssetsSQL = `
	SELECT id, memory_usage FROM assets
	WHERE usage_count = 0
		AND accessed_at < ?
		AND id NOT IN (SELECT depends_on FROM dependencies)
	ORDER BY id`

// Optimize prunes unused assets, compacts the file, refreshes planner
// statistics, prunes old usage events and rebuilds the full-text index.
// A failure to remove one asset is logged and skipped.
func (s *Store) Optimize(ctx context.Context) (*OptimizationReport, error) {
	start := time.Now()
	report := &OptimizationReport{
		RemovedAssets: []string{},
		FailedAssets:  map[string]string{},
	}

	initial, err := s.CountAssets(ctx)
	if err != nil {
		return nil, err
	}
	report.InitialAssetCount = initial
	sizeBefore := s.databaseSize() + s.walSize()

	cutoff := s.now().Add(-s.cfg.UnusedRetention).Unix()
	var candidates []SizedAsset
	err = s.withConn(ctx, "find unused assets", func(c *PooledConn) error {
		return s.selectAll(ctx, c, &candidates, unusedAssetsSQL, cutoff)
	})
	if err != nil {
		return nil, err
	}
	util.InfoLog("Optimize: %d unused assets eligible for pruning", len(candidates))

	var bar *progressbar.ProgressBar
	if len(candidates) > 0 && util.IsTerminal(os.Stdout.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(candidates),
			progressbar.OptionSetDescription("Pruning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("assets"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	for _, candidate := range candidates {
		removed, err := s.pruneAsset(ctx, candidate.AssetID, cutoff)
		switch {
		case err != nil:
			util.WarnLog("Optimize: failed to remove %s: %v", candidate.AssetID, err)
			report.FailedAssets[candidate.AssetID] = err.Error()
		case removed:
			report.RemovedAssets = append(report.RemovedAssets, candidate.AssetID)
			report.MemorySaved += candidate.Bytes
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	for _, step := range []struct {
		name string
		run  func() error
	}{
		{"vacuum", func() error { return s.execStandalone(ctx, "vacuum", "VACUUM") }},
		{"analyze", func() error { return s.execStandalone(ctx, "analyze", "ANALYZE") }},
		{"prune usage events", func() error {
			n, err := s.pruneEvents(ctx, s.now().Add(-s.cfg.EventRetention))
			report.EventsPruned = n
			return err
		}},
		{"rebuild full-text index", func() error {
			if !s.fts.Load() {
				return nil
			}
			return s.rebuildFTS(ctx)
		}},
	} {
		if err := step.run(); err != nil {
			util.WarnLog("Optimize: %s failed: %v", step.name, err)
		}
	}

	if s.cfg.EnableWAL {
		s.checkpoint(ctx, "TRUNCATE")
	}

	final, err := s.CountAssets(ctx)
	if err != nil {
		return nil, err
	}
	report.FinalAssetCount = final
	if sizeAfter := s.databaseSize() + s.walSize(); sizeAfter < sizeBefore {
		report.BytesReclaimed = sizeBefore - sizeAfter
	}
	report.Duration = time.Since(start)

	s.logMaintenance(ctx, opOptimize, start, report)
	util.SuccessLog("Optimize: removed %d assets, reclaimed %s in %v",
		len(report.RemovedAssets), util.FormatBytes(report.BytesReclaimed), report.Duration.Round(time.Millisecond))
	return report, nil
}

// pruneAsset removes an asset if it is still unused and has no dependents.
// The checks repeat inside the delete transaction so a concurrent access or
// new edge keeps the asset.
func (s *Store) pruneAsset(ctx context.Context, id string, cutoff int64) (bool, error) {
	removed := false
	err := s.transaction(ctx, "prune asset "+id, func(tx *sqlx.Tx) error {
		var eligible int
		if err := s.get(ctx, tx, &eligible,
			"SELECT COUNT(*) FROM assets WHERE id = ? AND usage_count = 0 AND accessed_at < ?",
			id, cutoff); err != nil {
			return err
		}
		if eligible == 0 {
			return nil
		}
		if has, err := s.hasDependents(ctx, tx, id); err != nil || has {
			return err
		}
		if err := s.removeAssetTx(ctx, tx, id); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

// execStandalone runs a statement that must not be inside a transaction
func (s *Store) execStandalone(ctx context.Context, op, stmt string) error {
	return s.withConn(ctx, op, func(c *PooledConn) error {
		_, err := s.exec(ctx, c, stmt)
		return err
	})
}

// logMaintenance appends to maintenance_log. Failures only log.
func (s *Store) logMaintenance(ctx context.Context, operation string, started time.Time, details any) {
	text := ""
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			text = string(b)
		}
	}
	err := s.transaction(ctx, "log maintenance", func(tx *sqlx.Tx) error {
		_, err := s.exec(ctx, tx,
			"INSERT INTO maintenance_log (operation, started_at, duration_ms, details) VALUES (?, ?, ?, ?)",
			operation, started.Unix(), time.Since(started).Milliseconds(), text)
		return err
	})
	if err != nil {
		util.WarnLog("Failed to record %s in maintenance log: %v", operation, err)
	}
}

// lastVacuum returns when the file was last compacted, or nil if never
func (s *Store) lastVacuum(ctx context.Context, q sqlx.QueryerContext) (*time.Time, error) {
	var ts *int64
	err := s.get(ctx, q, &ts,
		"SELECT MAX(started_at) FROM maintenance_log WHERE operation IN (?, ?)",
		opOptimize, opIncrementalVacuum)
	if err != nil {
		return nil, fmt.Errorf("failed to read maintenance log: %w", err)
	}
	if ts == nil {
		return nil, nil
	}
	t := unixTime(*ts)
	return &t, nil
}

// incrementalVacuum releases up to pages free pages back to the filesystem
func (s *Store) incrementalVacuum(ctx context.Context, pages int) error {
	start := time.Now()
	var freed int64
	err := s.withConn(ctx, opIncrementalVacuum, func(c *PooledConn) error {
		var before, after int64
		if err := s.get(ctx, c, &before, "PRAGMA freelist_count"); err != nil {
			return err
		}
		if before == 0 {
			return nil
		}
		if _, err := s.exec(ctx, c, fmt.Sprintf("PRAGMA incremental_vacuum(%d)", pages)); err != nil {
			return err
		}
		if err := s.get(ctx, c, &after, "PRAGMA freelist_count"); err != nil {
			return err
		}
		freed = before - after
		return nil
	})
	if err != nil {
		return err
	}
	if freed > 0 {
		util.DebugLog("Incremental vacuum freed %d pages", freed)
		s.logMaintenance(ctx, opIncrementalVacuum, start, map[string]int64{"pages_freed": freed})
	}
	return nil
}
