package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const slowQueryCapacity = 10

// perfStats accumulates query and pool counters. It has its own lock so
// recording never contends with connection slots.
type perfStats struct {
	mu              sync.Mutex
	queryCount      int64
	totalQueryTime  time.Duration
	slowest         []QueryTiming
	planHits        int64
	planMisses      int64
	connectionWaits int64
}

// statsSnapshot is a consistent copy of perfStats
type statsSnapshot struct {
	QueryCount      int64
	AverageQueryMS  float64
	Slowest         []QueryTiming
	PlanHits        int64
	PlanMisses      int64
	ConnectionWaits int64
}

// PlanHitRatio is hits / lookups, or 1 when nothing was looked up yet
func (s statsSnapshot) PlanHitRatio() float64 {
	total := s.PlanHits + s.PlanMisses
	if total == 0 {
		return 1
	}
	return float64(s.PlanHits) / float64(total)
}

func newPerfStats() *perfStats {
	return &perfStats{}
}

func (s *perfStats) recordQuery(query string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queryCount++
	s.totalQueryTime += d

	ms := float64(d) / float64(time.Millisecond)
	if len(s.slowest) == slowQueryCapacity && ms <= s.slowest[len(s.slowest)-1].DurationMS {
		return
	}
	s.slowest = append(s.slowest, QueryTiming{Query: compactSQL(query), DurationMS: ms})
	sort.SliceStable(s.slowest, func(i, j int) bool {
		return s.slowest[i].DurationMS > s.slowest[j].DurationMS
	})
	if len(s.slowest) > slowQueryCapacity {
		s.slowest = s.slowest[:slowQueryCapacity]
	}
}

func (s *perfStats) recordPlan(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.planHits++
	} else {
		s.planMisses++
	}
}

func (s *perfStats) recordWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionWaits++
}

func (s *perfStats) snapshot() statsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := statsSnapshot{
		QueryCount:      s.queryCount,
		Slowest:         append([]QueryTiming(nil), s.slowest...),
		PlanHits:        s.planHits,
		PlanMisses:      s.planMisses,
		ConnectionWaits: s.connectionWaits,
	}
	if s.queryCount > 0 {
		snap.AverageQueryMS = float64(s.totalQueryTime) / float64(time.Millisecond) / float64(s.queryCount)
	}
	return snap
}

// compactSQL collapses whitespace so multi-line queries read well in reports
func compactSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
