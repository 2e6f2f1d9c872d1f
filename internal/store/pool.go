package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/franz/asset-vault/internal/util"
)

// waitThreshold is the acquisition time above which a wait is counted
const waitThreshold = 10 * time.Millisecond

var errPoolClosed = errors.New("connection pool is closed")

// slot is one pinned connection. Its mutex is held for as long as a caller
// owns the connection.
type slot struct {
	mu   sync.Mutex
	conn *sqlx.Conn
}

// pool hands out a fixed set of pinned connections through a channel of
// free slot indexes.
type pool struct {
	cfg       Config
	stats     *perfStats
	db        *sqlx.DB
	slots     []*slot
	available chan int

	mu     sync.RWMutex // guards closed and the send side of available
	closed bool
}

// PooledConn is a connection checked out of the pool. Release returns it;
// calling Release more than once is harmless.
type PooledConn struct {
	*sqlx.Conn
	p    *pool
	idx  int
	once sync.Once
}

// Release hands the connection back to the pool
func (c *PooledConn) Release() {
	c.once.Do(func() {
		c.p.slots[c.idx].mu.Unlock()
		c.p.mu.RLock()
		defer c.p.mu.RUnlock()
		if !c.p.closed {
			c.p.available <- c.idx
		}
	})
}

func dsn(cfg Config) string {
	// Immediate transactions take the write lock up front so two writers
	// never deadlock upgrading from a read lock.
	return fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)", cfg.DatabasePath, cfg.BusyTimeoutMS)
}

// connPragmas returns the per-connection pragmas in the order they must run.
// page_size and auto_vacuum only take effect before the first table exists.
func connPragmas(cfg Config) []string {
	pragmas := []string{
		fmt.Sprintf("PRAGMA page_size = %d", cfg.PageSize),
	}
	if cfg.AutoVacuum {
		pragmas = append(pragmas, "PRAGMA auto_vacuum = INCREMENTAL")
	}
	if cfg.EnableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	pragmas = append(pragmas,
		// Negative value = KB
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeKB),
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeoutMS),
		// NORMAL is safe with WAL: fsync only at checkpoints
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	)
	return pragmas
}

func newPool(ctx context.Context, cfg Config, stats *perfStats) (*pool, error) {
	p := &pool{
		cfg:       cfg,
		stats:     stats,
		available: make(chan int, cfg.MaxConnections),
	}
	if err := p.open(ctx); err != nil {
		return nil, err
	}
	for i := range p.slots {
		p.available <- i
	}
	return p, nil
}

// open creates the database handle and pins every slot's connection
func (p *pool) open(ctx context.Context) error {
	db, err := sqlx.Open("sqlite", dsn(p.cfg))
	if err != nil {
		return opErr("open database", ErrConnectionFailed, err)
	}
	db.SetMaxOpenConns(p.cfg.MaxConnections)
	db.SetMaxIdleConns(p.cfg.MaxConnections)
	db.SetConnMaxLifetime(0)

	slots := make([]*slot, 0, p.cfg.MaxConnections)
	for i := 0; i < p.cfg.MaxConnections; i++ {
		conn, err := db.Connx(ctx)
		if err != nil {
			closeSlots(slots)
			db.Close()
			return opErr("open connection", ErrConnectionFailed, err)
		}
		for _, pragma := range connPragmas(p.cfg) {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				conn.Close()
				closeSlots(slots)
				db.Close()
				return opErr("configure connection", ErrConnectionFailed, fmt.Errorf("%s: %w", pragma, err))
			}
		}
		slots = append(slots, &slot{conn: conn})
	}

	p.db = db
	p.slots = slots
	util.DebugLog("Opened %d pooled connections to %s", len(slots), p.cfg.DatabasePath)
	return nil
}

func closeSlots(slots []*slot) {
	for _, s := range slots {
		s.conn.Close()
	}
}

// Acquire blocks until a connection is free, ctx is done or the busy
// timeout elapses.
func (p *pool) Acquire(ctx context.Context) (*PooledConn, error) {
	start := time.Now()

	var timeout <-chan time.Time
	if d := p.cfg.BusyTimeout(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	var idx int
	select {
	case i, ok := <-p.available:
		if !ok {
			return nil, opErr("acquire connection", ErrConnectionFailed, errPoolClosed)
		}
		idx = i
	case <-ctx.Done():
		return nil, opErr("acquire connection", ErrConnectionFailed, ctx.Err())
	case <-timeout:
		return nil, opErr("acquire connection", ErrConnectionFailed,
			fmt.Errorf("timed out after %v waiting for a free connection", p.cfg.BusyTimeout()))
	}

	if wait := time.Since(start); wait > waitThreshold {
		p.stats.recordWait()
		util.DebugLog("Waited %v for a pooled connection", wait)
	}

	s := p.slots[idx]
	s.mu.Lock()
	return &PooledConn{Conn: s.conn, p: p, idx: idx}, nil
}

// Size returns the number of pinned connections
func (p *pool) Size() int {
	return p.cfg.MaxConnections
}

// Active returns the number of connections currently checked out
func (p *pool) Active() int {
	return p.cfg.MaxConnections - len(p.available)
}

// drain checks out every slot, so the caller has exclusive use of the file
func (p *pool) drain(ctx context.Context) ([]*PooledConn, error) {
	held := make([]*PooledConn, 0, p.cfg.MaxConnections)
	for i := 0; i < p.cfg.MaxConnections; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			for _, h := range held {
				h.Release()
			}
			return nil, err
		}
		held = append(held, c)
	}
	return held, nil
}

// reopen closes the file with every slot drained, runs fn, then reconnects.
// Slots are handed back whether or not fn succeeds. If reconnecting fails
// the pool is left closed.
func (p *pool) reopen(ctx context.Context, fn func() error) error {
	held, err := p.drain(ctx)
	if err != nil {
		return err
	}

	closeSlots(p.slots)
	closeErr := p.db.Close()

	fnErr := fn()
	if openErr := p.open(ctx); openErr != nil {
		// The old connections are gone; later callers get a closed pool
		// instead of a dead handle.
		p.mu.Lock()
		p.closed = true
		close(p.available)
		p.mu.Unlock()
		for _, h := range held {
			h.once.Do(func() { p.slots[h.idx].mu.Unlock() })
		}
		util.ErrorLog("Reopening %s failed, pool closed: %v", p.cfg.DatabasePath, openErr)
		return openErr
	}

	// open replaced the slots, so only the index goes back.
	for _, h := range held {
		h.once.Do(func() {
			p.mu.RLock()
			defer p.mu.RUnlock()
			if !p.closed {
				p.available <- h.idx
			}
		})
	}

	if fnErr != nil {
		return fnErr
	}
	if closeErr != nil {
		util.WarnLog("Closing database before reopen reported: %v", closeErr)
	}
	return nil
}

// Close drains the pool and closes every connection. Connections still
// checked out after the busy timeout are closed regardless.
func (p *pool) Close() error {
	p.mu.RLock()
	alreadyClosed := p.closed
	p.mu.RUnlock()
	if alreadyClosed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.BusyTimeout()+time.Second)
	defer cancel()
	held, err := p.drain(ctx)
	if err != nil {
		util.WarnLog("Closing pool with connections still in use: %v", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.available)
	p.mu.Unlock()

	for _, h := range held {
		h.Release()
	}
	closeSlots(p.slots)
	if err := p.db.Close(); err != nil {
		return opErr("close database", ErrConnectionFailed, err)
	}
	return nil
}
