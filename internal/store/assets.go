package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/franz/asset-vault/internal/util"
)

const upsertAssetSQL = `
	INSERT INTO assets (` + assetColumns + `)
	VALUES (:id, :name, :asset_type, :file_path, :metadata, :tags, '[]',
		:created_at, :updated_at, :accessed_at, :import_settings, :quality_metrics,
		:usage_count, :memory_usage, :disk_usage, :checksum, :version)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		asset_type = excluded.asset_type,
		file_path = excluded.file_path,
		metadata = excluded.metadata,
		tags = excluded.tags,
		updated_at = excluded.updated_at,
		accessed_at = MAX(assets.accessed_at, excluded.accessed_at),
		import_settings = excluded.import_settings,
		quality_metrics = excluded.quality_metrics,
		usage_count = MAX(assets.usage_count, excluded.usage_count),
		memory_usage = excluded.memory_usage,
		disk_usage = excluded.disk_usage,
		checksum = excluded.checksum,
		version = MAX(assets.version + 1, excluded.version)
	RETURNING created_at, accessed_at, usage_count, collection_ids, version`

// AddOrUpdateAsset inserts a new asset or replaces an existing one.
// The creation time, usage counter and collection membership of an existing
// record are kept; its version is bumped. On return a holds exactly what was
// stored.
func (s *Store) AddOrUpdateAsset(ctx context.Context, a *Asset) error {
	if a == nil {
		return opErr("add asset", ErrValidationFailed, errors.New("asset is nil"))
	}
	normalizeAsset(a, s.now())
	if err := validateAsset(a); err != nil {
		return opErr("add asset", ErrValidationFailed, err)
	}

	row, err := encodeAsset(a)
	if err != nil {
		return opErr("add asset", ErrValidationFailed, err)
	}

	var stored struct {
		CreatedAt     int64  `db:"created_at"`
		AccessedAt    int64  `db:"accessed_at"`
		UsageCount    int64  `db:"usage_count"`
		CollectionIDs string `db:"collection_ids"`
		Version       int64  `db:"version"`
	}
	err = s.transaction(ctx, "add asset "+a.ID, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.Named(upsertAssetSQL, row)
		if err != nil {
			return fmt.Errorf("failed to bind asset: %w", err)
		}
		if err := s.get(ctx, tx, &stored, query, args...); err != nil {
			return fmt.Errorf("failed to upsert asset: %w", err)
		}
		if s.cfg.EnableAnalytics {
			if err := s.insertEvent(ctx, tx, a.ID, EventModify, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	collections, err := decodeStrings("collection_ids", stored.CollectionIDs)
	if err != nil {
		return opErr("add asset "+a.ID, ErrQueryFailed, err)
	}
	a.CreatedAt = unixTime(stored.CreatedAt)
	a.AccessedAt = unixTime(stored.AccessedAt)
	a.UsageCount = stored.UsageCount
	a.CollectionIDs = collections
	a.Version = stored.Version

	util.DebugLog("Stored asset %s (%s) v%d", a.ID, a.Type, a.Version)

	if s.cfg.AutoSave && s.cfg.EnableWAL {
		s.checkpoint(ctx, "PASSIVE")
	}
	return nil
}

// checkpoint flushes the WAL into the main file. Failures only log: the
// data is already durable in the WAL.
func (s *Store) checkpoint(ctx context.Context, mode string) {
	err := s.withConn(ctx, "checkpoint", func(c *PooledConn) error {
		_, err := s.exec(ctx, c, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
		return err
	})
	if err != nil {
		util.WarnLog("WAL checkpoint failed: %v", err)
	}
}

// GetAsset fetches an asset and records a View access. It returns nil, nil
// when the asset does not exist. The returned record is the state before
// this access was counted.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	var asset *Asset
	err := s.transaction(ctx, "get asset "+id, func(tx *sqlx.Tx) error {
		a, err := s.fetchAsset(ctx, tx, id)
		if err != nil || a == nil {
			asset = a
			return err
		}
		asset = a
		return s.recordAccessTx(ctx, tx, id, EventView, "")
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// LookupAsset fetches an asset without counting an access
func (s *Store) LookupAsset(ctx context.Context, id string) (*Asset, error) {
	var asset *Asset
	err := s.withConn(ctx, "lookup asset "+id, func(c *PooledConn) error {
		a, err := s.fetchAsset(ctx, c, id)
		asset = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *Store) fetchAsset(ctx context.Context, q sqlx.QueryerContext, id string) (*Asset, error) {
	var row assetRow
	err := s.get(ctx, q, &row, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return row.decode()
}

// RemoveAsset deletes an asset with its edges, memberships and usage
// events in one transaction. Removing a missing asset is not an error.
func (s *Store) RemoveAsset(ctx context.Context, id string) error {
	return s.transaction(ctx, "remove asset "+id, func(tx *sqlx.Tx) error {
		return s.removeAssetTx(ctx, tx, id)
	})
}

func (s *Store) removeAssetTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := s.exec(ctx, tx, "DELETE FROM dependencies WHERE asset_id = ? OR depends_on = ?", id, id); err != nil {
		return fmt.Errorf("failed to delete dependencies: %w", err)
	}
	if _, err := s.exec(ctx, tx, "DELETE FROM asset_collections WHERE asset_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	if s.cfg.EnableAnalytics {
		if _, err := s.exec(ctx, tx, "DELETE FROM usage_events WHERE asset_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete usage events: %w", err)
		}
	}
	res, err := s.exec(ctx, tx, "DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		util.DebugLog("Removed asset %s", id)
	}
	return nil
}

// assetExists reports whether id names a stored asset
func (s *Store) assetExists(ctx context.Context, q sqlx.QueryerContext, id string) (bool, error) {
	var n int
	if err := s.get(ctx, q, &n, "SELECT COUNT(*) FROM assets WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("failed to check asset %s: %w", id, err)
	}
	return n > 0, nil
}

// CountAssets returns the number of stored assets
func (s *Store) CountAssets(ctx context.Context) (int64, error) {
	var n int64
	err := s.withConn(ctx, "count assets", func(c *PooledConn) error {
		return s.get(ctx, c, &n, "SELECT COUNT(*) FROM assets")
	})
	return n, err
}

// GetMemoryUsage aggregates the estimated memory footprint of all assets
func (s *Store) GetMemoryUsage(ctx context.Context) (*MemoryUsageReport, error) {
	report := &MemoryUsageReport{
		ByType:        make(map[AssetType]int64),
		LargestAssets: []SizedAsset{},
	}

	err := s.withConn(ctx, "memory usage", func(c *PooledConn) error {
		var totals struct {
			Total int64 `db:"total"`
			Count int64 `db:"count"`
		}
		if err := s.get(ctx, c, &totals,
			"SELECT COALESCE(SUM(memory_usage), 0) AS total, COUNT(*) AS count FROM assets"); err != nil {
			return err
		}
		report.TotalMemory = totals.Total
		report.AssetCount = totals.Count

		var byType []struct {
			Type  string `db:"asset_type"`
			Bytes int64  `db:"bytes"`
		}
		if err := s.selectAll(ctx, c, &byType,
			"SELECT asset_type, SUM(memory_usage) AS bytes FROM assets GROUP BY asset_type"); err != nil {
			return err
		}
		for _, t := range byType {
			report.ByType[AssetType(t.Type)] = t.Bytes
		}

		return s.selectAll(ctx, c, &report.LargestAssets,
			"SELECT id, memory_usage FROM assets ORDER BY memory_usage DESC, id LIMIT 10")
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// GetDatabaseStats summarizes table contents and file size
func (s *Store) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{
		AssetTypeDistribution: make(map[string]int64),
		DatabasePath:          s.cfg.DatabasePath,
	}

	err := s.withConn(ctx, "database stats", func(c *PooledConn) error {
		var counts struct {
			Assets       int64 `db:"assets"`
			Collections  int64 `db:"collections"`
			Dependencies int64 `db:"dependencies"`
			Events       int64 `db:"events"`
			Memory       int64 `db:"memory"`
			Disk         int64 `db:"disk"`
		}
		err := s.get(ctx, c, &counts, `
			SELECT
				(SELECT COUNT(*) FROM assets) AS assets,
				(SELECT COUNT(*) FROM collections) AS collections,
				(SELECT COUNT(*) FROM dependencies) AS dependencies,
				(SELECT COUNT(*) FROM usage_events) AS events,
				(SELECT COALESCE(SUM(memory_usage), 0) FROM assets) AS memory,
				(SELECT COALESCE(SUM(disk_usage), 0) FROM assets) AS disk`)
		if err != nil {
			return err
		}
		stats.AssetCount = counts.Assets
		stats.CollectionCount = counts.Collections
		stats.DependencyCount = counts.Dependencies
		stats.UsageEventCount = counts.Events
		stats.TotalMemoryUsage = counts.Memory
		stats.TotalDiskUsage = counts.Disk

		var dist []struct {
			Type  string `db:"asset_type"`
			Count int64  `db:"n"`
		}
		if err := s.selectAll(ctx, c, &dist,
			"SELECT asset_type, COUNT(*) AS n FROM assets GROUP BY asset_type"); err != nil {
			return err
		}
		for _, d := range dist {
			stats.AssetTypeDistribution[d.Type] = d.Count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.DatabaseSize = s.databaseSize()
	return stats, nil
}
