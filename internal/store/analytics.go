package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// analyticsWindow bounds the usage report
const analyticsWindow = 30 * 24 * time.Hour

// RecordAccess counts one access to an asset: it bumps the asset's usage
// counter and access time and, when analytics is enabled, appends a usage
// event. Unknown assets are rejected.
func (s *Store) RecordAccess(ctx context.Context, id string, event EventType, note string) error {
	event, err := ParseEventType(string(event))
	if err != nil {
		return opErr("record access", ErrValidationFailed, err)
	}
	return s.transaction(ctx, "record access "+id, func(tx *sqlx.Tx) error {
		exists, err := s.assetExists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return opErr("record access", ErrValidationFailed, fmt.Errorf("asset %s does not exist", id))
		}
		return s.recordAccessTx(ctx, tx, id, event, note)
	})
}

func (s *Store) recordAccessTx(ctx context.Context, tx *sqlx.Tx, id string, event EventType, note string) error {
	_, err := s.exec(ctx, tx,
		"UPDATE assets SET accessed_at = ?, usage_count = usage_count + 1 WHERE id = ?",
		s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update access time: %w", err)
	}
	if s.cfg.EnableAnalytics {
		return s.insertEvent(ctx, tx, id, event, note)
	}
	return nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sqlx.Tx, id string, event EventType, note string) error {
	var ctxValue sql.NullString
	if note != "" {
		ctxValue = sql.NullString{String: note, Valid: true}
	}
	_, err := s.exec(ctx, tx,
		"INSERT INTO usage_events (asset_id, event_type, timestamp, context) VALUES (?, ?, ?, ?)",
		id, string(event), s.now().Unix(), ctxValue)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", event, err)
	}
	return nil
}

// GetUsageAnalytics reports usage over the last 30 days. With analytics
// disabled it returns an empty report.
func (s *Store) GetUsageAnalytics(ctx context.Context) (*UsageAnalytics, error) {
	report := &UsageAnalytics{
		PopularAssets:         []PopularAsset{},
		EventTypeDistribution: make(map[string]int64),
	}
	if s.sessions != nil {
		report.CacheHitRate = s.sessions.CacheHitRate()
		report.AverageSessionDuration = s.sessions.AverageSessionDuration()
		report.PeakConcurrentUsers = s.sessions.PeakConcurrentUsers()
	}
	if !s.cfg.EnableAnalytics {
		return report, nil
	}

	since := s.now().Add(-analyticsWindow).Unix()
	err := s.withConn(ctx, "usage analytics", func(c *PooledConn) error {
		if err := s.selectAll(ctx, c, &report.PopularAssets, `
			SELECT e.asset_id AS asset_id, COALESCE(a.name, '') AS name, COUNT(*) AS access_count
			FROM usage_events e
			LEFT JOIN assets a ON a.id = e.asset_id
			WHERE e.timestamp >= ?
			GROUP BY e.asset_id
			ORDER BY access_count DESC, e.asset_id
			LIMIT 10`, since); err != nil {
			return fmt.Errorf("failed to query popular assets: %w", err)
		}

		var hours []struct {
			Hour  int   `db:"hour"`
			Count int64 `db:"n"`
		}
		if err := s.selectAll(ctx, c, &hours, `
			SELECT CAST(strftime('%H', timestamp, 'unixepoch') AS INTEGER) AS hour, COUNT(*) AS n
			FROM usage_events
			WHERE timestamp >= ?
			GROUP BY hour`, since); err != nil {
			return fmt.Errorf("failed to query hourly pattern: %w", err)
		}
		for _, h := range hours {
			if h.Hour >= 0 && h.Hour < 24 {
				report.HourlyAccessPattern[h.Hour] = h.Count
			}
		}

		var types []struct {
			Type  string `db:"event_type"`
			Count int64  `db:"n"`
		}
		if err := s.selectAll(ctx, c, &types, `
			SELECT event_type, COUNT(*) AS n
			FROM usage_events
			WHERE timestamp >= ?
			GROUP BY event_type`, since); err != nil {
			return fmt.Errorf("failed to query event types: %w", err)
		}
		for _, t := range types {
			report.EventTypeDistribution[t.Type] = t.Count
			report.TotalEvents += t.Count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// pruneEvents deletes usage events older than cutoff
func (s *Store) pruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	var pruned int64
	err := s.transaction(ctx, "prune usage events", func(tx *sqlx.Tx) error {
		res, err := s.exec(ctx, tx, "DELETE FROM usage_events WHERE timestamp < ?", cutoff.Unix())
		if err != nil {
			return err
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	return pruned, err
}
