package store

import (
	"fmt"
	"time"
)

// Config holds database options
type Config struct {
	DatabasePath    string
	EnableWAL       bool
	CacheSizeKB     int
	MaxConnections  int
	EnableAnalytics bool
	AutoVacuum      bool
	AutoSave        bool
	PageSize        int
	BusyTimeoutMS   int
	EnableFTS       bool

	UnusedRetention time.Duration // Assets untouched this long (and never used) are pruned by Optimize
	EventRetention  time.Duration // Usage events older than this are pruned by Optimize
	VacuumInterval  time.Duration // Incremental vacuum period; 0 disables the task
	PlanCacheTTL    time.Duration // Query plans older than this are evicted; 0 disables the task
	StatsInterval   time.Duration // Performance stats logging period; 0 disables the task
}

// DefaultConfig returns the default configuration for a database at path
func DefaultConfig(path string) Config {
	return Config{
		DatabasePath:    path,
		EnableWAL:       true,
		CacheSizeKB:     64 * 1024,
		MaxConnections:  4,
		EnableAnalytics: true,
		AutoVacuum:      true,
		AutoSave:        true,
		PageSize:        4096,
		BusyTimeoutMS:   30000,
		EnableFTS:       true,

		UnusedRetention: 30 * 24 * time.Hour,
		EventRetention:  180 * 24 * time.Hour,
		VacuumInterval:  time.Hour,
		PlanCacheTTL:    time.Hour,
		StatsInterval:   5 * time.Minute,
	}
}

// BusyTimeout returns the busy timeout as a duration
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

func (c Config) validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("max connections must be at least 1, got %d", c.MaxConnections)
	}
	if c.PageSize < 512 || c.PageSize > 65536 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("page size must be a power of two between 512 and 65536, got %d", c.PageSize)
	}
	if c.CacheSizeKB < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", c.CacheSizeKB)
	}
	if c.BusyTimeoutMS < 0 {
		return fmt.Errorf("busy timeout must not be negative, got %d", c.BusyTimeoutMS)
	}
	if c.UnusedRetention < 0 || c.EventRetention < 0 {
		return fmt.Errorf("retention windows must not be negative")
	}
	return nil
}
