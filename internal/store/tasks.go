package store

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/franz/asset-vault/internal/util"
)

// incrementalVacuumPages bounds the work of one background vacuum tick
const incrementalVacuumPages = 100

// supervisor owns the periodic maintenance goroutines of one Store. Each
// task holds a pooled connection only while a tick runs.
type supervisor struct {
	cancel context.CancelFunc
	wg     conc.WaitGroup
	names  []string
}

func startTasks(s *Store) *supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	sv := &supervisor{cancel: cancel}

	if s.cfg.AutoVacuum && s.cfg.VacuumInterval > 0 {
		sv.every(ctx, "incremental vacuum", s.cfg.VacuumInterval, func(ctx context.Context) error {
			return s.incrementalVacuum(ctx, incrementalVacuumPages)
		})
	}
	if s.cfg.PlanCacheTTL > 0 {
		sv.every(ctx, "plan cache eviction", s.cfg.PlanCacheTTL, func(context.Context) error {
			if n := s.optimizer.Evict(s.cfg.PlanCacheTTL); n > 0 {
				util.DebugLog("Evicted %d cached query plans", n)
			}
			return nil
		})
	}
	if s.cfg.StatsInterval > 0 {
		sv.every(ctx, "stats logging", s.cfg.StatsInterval, func(context.Context) error {
			snap := s.stats.snapshot()
			util.DebugLog("Stats: %d queries, avg %s, plan hit ratio %.2f, %d connection waits, %d/%d connections active",
				snap.QueryCount, util.FormatMillis(snap.AverageQueryMS), snap.PlanHitRatio(),
				snap.ConnectionWaits, s.pool.Active(), s.pool.Size())
			return nil
		})
	}

	if len(sv.names) > 0 {
		util.DebugLog("Started background tasks: %v", sv.names)
	}
	return sv
}

// every runs fn each interval until ctx is cancelled
func (sv *supervisor) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	sv.names = append(sv.names, name)
	sv.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					util.WarnLog("Background %s failed: %v", name, err)
				}
			}
		}
	})
}

// Stop cancels every task and waits for running ticks to finish
func (sv *supervisor) Stop() {
	sv.cancel()
	sv.wg.Wait()
}
