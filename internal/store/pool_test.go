package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size, timeoutMS int) (*pool, *perfStats) {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "pool.db"))
	cfg.MaxConnections = size
	cfg.BusyTimeoutMS = timeoutMS

	stats := newPerfStats()
	p, err := newPool(context.Background(), cfg, stats)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, stats
}

func TestPoolAcquireRelease(t *testing.T) {
	p, _ := newTestPool(t, 1, 1000)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Active())

	var one int
	require.NoError(t, c.GetContext(ctx, &one, "SELECT 1"))
	assert.Equal(t, 1, one)

	c.Release()
	c.Release() // second release is a no-op
	assert.Equal(t, 0, p.Active())

	c, err = p.Acquire(ctx)
	require.NoError(t, err)
	c.Release()
	assert.Equal(t, 1, p.Size())
}

func TestPoolConnectionsArePinned(t *testing.T) {
	p, _ := newTestPool(t, 1, 1000)
	ctx := context.Background()

	// Connection-scoped state survives a release because the same
	// connection comes back.
	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	_, err = c.ExecContext(ctx, "CREATE TEMP TABLE scratch (x INTEGER)")
	require.NoError(t, err)
	c.Release()

	c, err = p.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()
	_, err = c.ExecContext(ctx, "INSERT INTO scratch VALUES (1)")
	assert.NoError(t, err)

	var fk int
	require.NoError(t, c.GetContext(ctx, &fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, c.GetContext(ctx, &mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestPoolAcquireBlocksUntilRelease(t *testing.T) {
	p, stats := newTestPool(t, 1, 5000)
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		c, err := p.Acquire(ctx)
		if err == nil {
			close(acquired)
			c.Release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquired a connection while the only one was held")
	case <-time.After(50 * time.Millisecond):
	}

	held.Release()
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("waiter never got the connection")
	}
	assert.Equal(t, int64(1), stats.snapshot().ConnectionWaits)
}

func TestPoolAcquireTimesOut(t *testing.T) {
	p, _ := newTestPool(t, 1, 50)
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPoolAcquireHonorsContext(t *testing.T) {
	p, _ := newTestPool(t, 1, 5000)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolClose(t *testing.T) {
	p, _ := newTestPool(t, 2, 1000)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestPoolReopen(t *testing.T) {
	p, _ := newTestPool(t, 2, 1000)
	ctx := context.Background()

	ran := false
	require.NoError(t, p.reopen(ctx, func() error {
		ran = true
		assert.Equal(t, 2, p.Active(), "every slot is held while the file is closed")
		return nil
	}))
	assert.True(t, ran)
	assert.Equal(t, 0, p.Active())

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()
	var one int
	require.NoError(t, c.GetContext(ctx, &one, "SELECT 1"))
}

func TestPoolClosedAfterFailedReopen(t *testing.T) {
	p, _ := newTestPool(t, 2, 1000)
	ctx := context.Background()

	err := p.reopen(ctx, func() error {
		// A directory where the database file was cannot be opened
		path := p.cfg.DatabasePath
		for _, f := range []string{path, path + "-wal", path + "-shm"} {
			require.NoError(t, os.RemoveAll(f))
		}
		return os.Mkdir(path, 0755)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorIs(t, err, errPoolClosed)
	assert.NoError(t, p.Close())
}

func TestConnPragmas(t *testing.T) {
	cfg := DefaultConfig("x.db")
	pragmas := connPragmas(cfg)
	assert.Equal(t, "PRAGMA page_size = 4096", pragmas[0])
	assert.Equal(t, "PRAGMA auto_vacuum = INCREMENTAL", pragmas[1])
	assert.Contains(t, pragmas, "PRAGMA journal_mode = WAL")
	assert.Contains(t, pragmas, "PRAGMA cache_size = -65536")
	assert.Contains(t, pragmas, "PRAGMA foreign_keys = ON")

	cfg.EnableWAL = false
	cfg.AutoVacuum = false
	assert.NotContains(t, connPragmas(cfg), "PRAGMA journal_mode = WAL")
	assert.NotContains(t, connPragmas(cfg), "PRAGMA auto_vacuum = INCREMENTAL")

	assert.Equal(t, "file:x.db?_txlock=immediate&_pragma=busy_timeout(30000)", dsn(DefaultConfig("x.db")))
}
