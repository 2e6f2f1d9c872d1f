package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/asset-vault/internal/util"
)

// BackupToFile copies the database to path, creating missing directories.
// The WAL is checkpointed first so the copy is self-contained. Callers must
// make sure no other writer is mid-transaction.
func (s *Store) BackupToFile(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	if path == "" {
		return 0, opErr("backup", ErrValidationFailed, fmt.Errorf("backup path is required"))
	}

	if s.cfg.EnableWAL {
		if err := s.checkpointWAL(ctx); err != nil {
			return 0, opErr("backup checkpoint", ErrQueryFailed, err)
		}
	}

	n, err := util.CopyFile(s.dbFs, s.cfg.DatabasePath, path, util.DefaultRetryConfig())
	if err != nil {
		return 0, opErr("backup to "+path, ErrQueryFailed, err)
	}

	util.InfoLog("Backed up %s to %s (%s)", s.cfg.DatabasePath, path, util.FormatBytes(n))
	s.logMaintenance(ctx, opBackup, start, map[string]any{"path": path, "bytes": n})
	return n, nil
}

// errCheckpointBusy means a reader kept the checkpoint from copying every
// WAL frame into the main file
var errCheckpointBusy = errors.New("wal checkpoint incomplete: database is locked by an open reader")

// checkpointWAL folds the whole WAL into the database file, retrying while
// readers hold older snapshots.
func (s *Store) checkpointWAL(ctx context.Context) error {
	return util.Retry(s.checkpointRetry, func() error {
		return s.withConn(ctx, "backup checkpoint", func(c *PooledConn) error {
			var busy, logFrames, checkpointed int
			const pragma = "PRAGMA wal_checkpoint(TRUNCATE)"
			start := time.Now()
			err := c.QueryRowxContext(ctx, pragma).Scan(&busy, &logFrames, &checkpointed)
			s.stats.recordQuery(pragma, time.Since(start))
			if err != nil {
				return err
			}
			if busy != 0 {
				return fmt.Errorf("%w (%d of %d frames)", errCheckpointBusy, checkpointed, logFrames)
			}
			return nil
		})
	}, "backup checkpoint")
}

// RestoreFromFile replaces the database with the backup at path. Every
// pooled connection is drained and reopened around the copy, then
// migrations run again. Callers must make sure no other writer is
// mid-transaction.
func (s *Store) RestoreFromFile(ctx context.Context, path string) error {
	start := time.Now()
	exists, err := afero.Exists(s.dbFs, path)
	if err != nil {
		return opErr("restore from "+path, ErrQueryFailed, err)
	}
	if !exists {
		return opErr("restore from "+path, ErrValidationFailed, fmt.Errorf("backup file %s does not exist", path))
	}

	var copied int64
	err = s.pool.reopen(ctx, func() error {
		n, err := util.CopyFile(s.dbFs, path, s.cfg.DatabasePath, util.DefaultRetryConfig())
		if err != nil {
			return opErr("restore from "+path, ErrQueryFailed, err)
		}
		copied = n
		// Stale WAL frames belong to the replaced file
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := s.dbFs.Remove(s.cfg.DatabasePath + suffix); err != nil && !os.IsNotExist(err) {
				return opErr("restore from "+path, ErrQueryFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.setup(ctx); err != nil {
		return err
	}

	util.InfoLog("Restored %s from %s (%s)", s.cfg.DatabasePath, path, util.FormatBytes(copied))
	s.logMaintenance(ctx, opRestore, start, map[string]any{"path": path, "bytes": copied})
	return nil
}
