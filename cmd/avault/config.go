package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/franz/asset-vault/internal/report"
	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AVAULT_POOL_SIZE maps to pool-size, AVAULT_RETENTION_UNUSED to retention.unused
var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (AVAULT_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// GetConfigDuration retrieves a duration such as "720h"
func GetConfigDuration(key string, defaultValue time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetDuration(key)
}

// storeConfig maps flags, environment and config file onto store.Config
func storeConfig() store.Config {
	cfg := store.DefaultConfig(GetConfigString("db", "vault.db"))
	cfg.EnableFTS = !GetConfigBool("no-fts")
	cfg.EnableAnalytics = !GetConfigBool("no-analytics")
	cfg.MaxConnections = GetConfigInt("pool-size", cfg.MaxConnections)
	cfg.BusyTimeoutMS = GetConfigInt("busy-timeout", cfg.BusyTimeoutMS)
	cfg.CacheSizeKB = GetConfigInt("cache-size-kb", cfg.CacheSizeKB)
	cfg.PageSize = GetConfigInt("page-size", cfg.PageSize)
	if viper.IsSet("wal") {
		cfg.EnableWAL = GetConfigBool("wal")
	}

	cfg.UnusedRetention = GetConfigDuration("retention.unused", cfg.UnusedRetention)
	cfg.EventRetention = GetConfigDuration("retention.events", cfg.EventRetention)

	// A CLI invocation is short-lived; the periodic tasks only matter for
	// long-running processes embedding the store.
	cfg.VacuumInterval = GetConfigDuration("tasks.vacuum-interval", 0)
	cfg.PlanCacheTTL = GetConfigDuration("tasks.plan-cache-ttl", 0)
	cfg.StatsInterval = GetConfigDuration("tasks.stats-interval", 0)
	return cfg
}

func openStore() (*store.Store, error) {
	cfg := storeConfig()
	util.DebugLog("Database: %s", cfg.DatabasePath)
	db, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openEventLogger returns the audit logger, or a no-op logger when no
// event directory is configured or it cannot be created.
func openEventLogger() *report.EventLogger {
	dir := GetConfigString("event-log", "")
	if dir == "" {
		return report.NullLogger()
	}
	logger, err := report.NewEventLogger(dir, report.ParseLevel(GetConfigString("event-level", "info")))
	if err != nil {
		util.WarnLog("Audit events disabled: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Audit events: %s", logger.Path())
	return logger
}

// writeStructured renders v as json or yaml
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
