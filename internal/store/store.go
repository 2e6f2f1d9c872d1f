package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"

	"github.com/franz/asset-vault/internal/util"
)

// SessionMetrics supplies engine-side figures the database cannot measure
// itself. All values are reported as-is in usage analytics.
type SessionMetrics interface {
	CacheHitRate() float64
	AverageSessionDuration() float64 // seconds
	PeakConcurrentUsers() int
}

// Options holds collaborators for a Store. The zero value is usable.
type Options struct {
	AssetFs  afero.Fs       // Filesystem asset file paths resolve against (default: OS)
	Sessions SessionMetrics // Optional source of session analytics
	Now      func() time.Time
}

// Store is the asset database
type Store struct {
	cfg       Config
	dbFs      afero.Fs
	assetFs   afero.Fs
	sessions  SessionMetrics
	now       func() time.Time
	stats     *perfStats
	optimizer *queryOptimizer
	pool      *pool
	tasks     *supervisor
	fts       atomic.Bool

	checkpointRetry *util.RetryConfig
}

// Open opens or creates the database described by cfg with default options
func Open(cfg Config) (*Store, error) {
	return OpenWithOptions(cfg, nil)
}

// OpenWithOptions opens or creates the database, applies pending
// migrations, installs the full-text index when enabled and starts the
// background maintenance tasks.
func OpenWithOptions(cfg Config, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := cfg.validate(); err != nil {
		return nil, opErr("open", ErrValidationFailed, err)
	}

	s := &Store{
		cfg:      cfg,
		dbFs:     afero.NewOsFs(),
		assetFs:  opts.AssetFs,
		sessions: opts.Sessions,
		now:      opts.Now,
		stats:    newPerfStats(),

		checkpointRetry: util.DefaultRetryConfig(),
	}
	if s.assetFs == nil {
		s.assetFs = s.dbFs
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.optimizer = newQueryOptimizer(s.stats)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := s.dbFs.MkdirAll(dir, 0755); err != nil {
			return nil, opErr("create database directory", ErrConnectionFailed, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout(cfg))
	defer cancel()

	p, err := newPool(ctx, cfg, s.stats)
	if err != nil {
		return nil, err
	}
	s.pool = p

	if err := s.setup(ctx); err != nil {
		p.Close()
		return nil, err
	}

	s.tasks = startTasks(s)
	return s, nil
}

func startupTimeout(cfg Config) time.Duration {
	return cfg.BusyTimeout() + time.Minute
}

// setup runs migrations and prepares the full-text index. It runs on open
// and again after a restore.
func (s *Store) setup(ctx context.Context) error {
	err := s.withConn(ctx, "migrate", func(c *PooledConn) error {
		return migrate(ctx, c.Conn)
	})
	if err != nil {
		return err
	}

	s.fts.Store(false)
	if s.cfg.EnableFTS {
		if err := s.rebuildFTS(ctx); err != nil {
			util.WarnLog("Full-text search unavailable, falling back to structured search: %v", err)
		} else {
			s.fts.Store(true)
		}
	}
	return nil
}

// Close stops background tasks and closes every pooled connection
func (s *Store) Close() error {
	if s.tasks != nil {
		s.tasks.Stop()
	}
	return s.pool.Close()
}

// Config returns the configuration the store was opened with
func (s *Store) Config() Config {
	return s.cfg
}

// FullTextEnabled reports whether searches can use the full-text index
func (s *Store) FullTextEnabled() bool {
	return s.fts.Load()
}

// SQLiteVersion returns the SQLite library version
func (s *Store) SQLiteVersion(ctx context.Context) (string, error) {
	var version string
	err := s.withConn(ctx, "sqlite version", func(c *PooledConn) error {
		return s.get(ctx, c, &version, "SELECT sqlite_version()")
	})
	return version, err
}

func (s *Store) withConn(ctx context.Context, op string, fn func(*PooledConn) error) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return opErr(op, ErrConnectionFailed, err)
	}
	defer c.Release()

	if err := fn(c); err != nil {
		return opErr(op, ErrQueryFailed, err)
	}
	return nil
}

// transaction executes fn within one transaction on one pooled connection.
// Any error rolls the transaction back.
func (s *Store) transaction(ctx context.Context, op string, fn func(*sqlx.Tx) error) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return opErr(op, ErrConnectionFailed, err)
	}
	defer c.Release()

	tx, err := c.BeginTxx(ctx, nil)
	if err != nil {
		return opErr(op, ErrTransactionFailed, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return opErr(op, ErrQueryFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return opErr(op, ErrTransactionFailed, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// selectAll runs a read through the plan cache and records its timing
func (s *Store) selectAll(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	plan := s.optimizer.Optimize(query)
	start := time.Now()
	err := sqlx.SelectContext(ctx, q, dest, plan.SQL, args...)
	s.stats.recordQuery(plan.SQL, time.Since(start))
	return err
}

// get is selectAll for a single row; it returns sql.ErrNoRows when empty
func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	plan := s.optimizer.Optimize(query)
	start := time.Now()
	err := sqlx.GetContext(ctx, q, dest, plan.SQL, args...)
	s.stats.recordQuery(plan.SQL, time.Since(start))
	return err
}

func (s *Store) exec(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := e.ExecContext(ctx, query, args...)
	s.stats.recordQuery(query, time.Since(start))
	return res, err
}

// databaseSize returns the size of the main database file
func (s *Store) databaseSize() int64 {
	info, err := s.dbFs.Stat(s.cfg.DatabasePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *Store) walSize() int64 {
	info, err := s.dbFs.Stat(s.cfg.DatabasePath + "-wal")
	if err != nil {
		if !os.IsNotExist(err) {
			util.DebugLog("Could not stat WAL file: %v", err)
		}
		return 0
	}
	return info.Size()
}
