package store

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// safetyLimit bounds SELECTs that have neither a filter nor a limit
const safetyLimit = 10000

// QueryPlan is the memoized rewrite of one query text
type QueryPlan struct {
	SQL       string
	UsesIndex bool
	CreatedAt time.Time
}

// queryOptimizer memoizes plans keyed by exact query text. It never changes
// the meaning of queries that already carry a bound or an aggregate.
type queryOptimizer struct {
	mu    sync.Mutex
	plans map[string]*QueryPlan
	stats *perfStats
	now   func() time.Time
}

var (
	wordWhere = regexp.MustCompile(`(?i)\bWHERE\b`)
	wordLimit = regexp.MustCompile(`(?i)\bLIMIT\b`)
	wordCount = regexp.MustCompile(`(?i)\bCOUNT\s*\(`)

	// Columns covered by an index in schemaV1/schemaV2
	indexedColumns = regexp.MustCompile(`(?i)\b(id|name|asset_type|created_at|accessed_at|asset_id|depends_on|collection_id|timestamp|operation)\s*(=|<|>|IN\b|LIKE\b|BETWEEN\b)`)
)

func newQueryOptimizer(stats *perfStats) *queryOptimizer {
	return &queryOptimizer{
		plans: make(map[string]*QueryPlan),
		stats: stats,
		now:   time.Now,
	}
}

// Optimize returns the plan for query, computing it on first sight
func (o *queryOptimizer) Optimize(query string) QueryPlan {
	o.mu.Lock()
	plan, ok := o.plans[query]
	if !ok {
		plan = o.plan(query)
		o.plans[query] = plan
	}
	result := *plan
	o.mu.Unlock()

	if o.stats != nil {
		o.stats.recordPlan(ok)
	}
	return result
}

func (o *queryOptimizer) plan(query string) *QueryPlan {
	trimmed := strings.TrimSpace(query)
	rewritten := trimmed

	if strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") &&
		!wordWhere.MatchString(trimmed) &&
		!wordLimit.MatchString(trimmed) &&
		!wordCount.MatchString(trimmed) {
		rewritten = strings.TrimRight(trimmed, "; \n\t") + fmt.Sprintf(" LIMIT %d", safetyLimit)
	}

	return &QueryPlan{
		SQL:       rewritten,
		UsesIndex: indexedColumns.MatchString(trimmed),
		CreatedAt: o.now(),
	}
}

// Evict drops plans created before now-ttl and returns how many were dropped
func (o *queryOptimizer) Evict(ttl time.Duration) int {
	cutoff := o.now().Add(-ttl)

	o.mu.Lock()
	defer o.mu.Unlock()

	evicted := 0
	for q, p := range o.plans {
		if p.CreatedAt.Before(cutoff) {
			delete(o.plans, q)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached plans
func (o *queryOptimizer) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.plans)
}
