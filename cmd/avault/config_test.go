package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setConfig(t *testing.T, values map[string]any) {
	t.Helper()
	for k, v := range values {
		viper.Set(k, v)
	}
	t.Cleanup(func() {
		for k := range values {
			viper.Set(k, nil)
		}
	})
}

func TestStoreConfig_Defaults(t *testing.T) {
	setConfig(t, map[string]any{"db": "test.db"})

	cfg := storeConfig()

	if cfg.DatabasePath != "test.db" {
		t.Errorf("Expected database path test.db, got %s", cfg.DatabasePath)
	}
	if !cfg.EnableFTS || !cfg.EnableAnalytics {
		t.Error("Expected full-text search and analytics enabled by default")
	}
	if cfg.MaxConnections != 4 || cfg.BusyTimeoutMS != 30000 {
		t.Errorf("Unexpected pool defaults: %d connections, %d ms", cfg.MaxConnections, cfg.BusyTimeoutMS)
	}
	if cfg.VacuumInterval != 0 || cfg.PlanCacheTTL != 0 || cfg.StatsInterval != 0 {
		t.Error("Expected background tasks disabled for CLI runs")
	}
}

func TestStoreConfig_Overrides(t *testing.T) {
	setConfig(t, map[string]any{
		"db":                   "test.db",
		"no-fts":               true,
		"no-analytics":         true,
		"pool-size":            2,
		"busy-timeout":         500,
		"wal":                  false,
		"retention.unused":     "240h",
		"retention.events":     "48h",
		"tasks.stats-interval": "1m",
	})

	cfg := storeConfig()

	if cfg.EnableFTS || cfg.EnableAnalytics || cfg.EnableWAL {
		t.Error("Expected FTS, analytics and WAL disabled")
	}
	if cfg.MaxConnections != 2 || cfg.BusyTimeoutMS != 500 {
		t.Errorf("Unexpected pool settings: %d connections, %d ms", cfg.MaxConnections, cfg.BusyTimeoutMS)
	}
	if cfg.UnusedRetention != 10*24*time.Hour || cfg.EventRetention != 48*time.Hour {
		t.Errorf("Unexpected retention: %v %v", cfg.UnusedRetention, cfg.EventRetention)
	}
	if cfg.StatsInterval != time.Minute {
		t.Errorf("Expected stats interval 1m, got %v", cfg.StatsInterval)
	}
}

func TestEnvKeyReplacer(t *testing.T) {
	if got := envKeyReplacer.Replace("retention.unused"); got != "retention_unused" {
		t.Errorf("got %s", got)
	}
	if got := envKeyReplacer.Replace("pool-size"); got != "pool_size" {
		t.Errorf("got %s", got)
	}
}

func TestWriteStructured(t *testing.T) {
	v := map[string]int{"assets": 3}

	var buf bytes.Buffer
	if err := writeStructured(&buf, "json", v); err != nil {
		t.Fatalf("json failed: %v", err)
	}
	if buf.String() != "{\n  \"assets\": 3\n}\n" {
		t.Errorf("unexpected json %q", buf.String())
	}

	buf.Reset()
	if err := writeStructured(&buf, "yaml", v); err != nil {
		t.Fatalf("yaml failed: %v", err)
	}
	if buf.String() != "assets: 3\n" {
		t.Errorf("unexpected yaml %q", buf.String())
	}

	if err := writeStructured(&buf, "xml", v); err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("expected error naming the format, got %v", err)
	}
}

func TestDefaultBackupPath(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	got := defaultBackupPath("/data/vault.db", now)
	if want := filepath.Join("backups", "vault-20240506-070809.db"); got != want {
		t.Errorf("defaultBackupPath() = %s, want %s", got, want)
	}
}
