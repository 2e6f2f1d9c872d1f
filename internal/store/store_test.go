package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a config in a temp dir with background tasks disabled
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "vault.db"))
	cfg.BusyTimeoutMS = 5000
	cfg.VacuumInterval = 0
	cfg.PlanCacheTTL = 0
	cfg.StatsInterval = 0
	return cfg
}

func openTestStore(t *testing.T, mutate ...func(*Config)) *Store {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testAsset(id, name string, typ AssetType) *Asset {
	return &Asset{
		ID:       id,
		Name:     name,
		Type:     typ,
		FilePath: "/assets/" + id,
		Metadata: AssetMetadata{
			FileSize:         1024,
			CustomProperties: map[string]string{"source": "test"},
		},
		Tags: []string{"test"},
		ImportSettings: ImportSettings{
			QualityLevel:      QualityHigh,
			PlatformTarget:    PlatformDesktop,
			OptimizationLevel: OptimizationBasic,
		},
		QualityMetrics: QualityMetrics{
			OverallScore:          0.9,
			PerformanceImpact:     0.2,
			MemoryEfficiency:      0.8,
			VisualQuality:         0.95,
			OptimizationPotential: 0.1,
		},
		MemoryUsage: 4096,
		DiskUsage:   1024,
		Checksum:    "deadbeef",
	}
}

func mustAdd(t *testing.T, s *Store, assets ...*Asset) {
	t.Helper()
	for _, a := range assets {
		require.NoError(t, s.AddOrUpdateAsset(context.Background(), a))
	}
}

// rawExec runs a statement directly on a pooled connection
func rawExec(t *testing.T, s *Store, query string, args ...any) {
	t.Helper()
	err := s.withConn(context.Background(), "test exec", func(c *PooledConn) error {
		_, err := c.ExecContext(context.Background(), query, args...)
		return err
	})
	require.NoError(t, err)
}

func rawCount(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	err := s.withConn(context.Background(), "test count", func(c *PooledConn) error {
		return sqlx.GetContext(context.Background(), c, &n, query, args...)
	})
	require.NoError(t, err)
	return n
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var version int
	err := s.withConn(ctx, "version", func(c *PooledConn) error {
		var err error
		version, err = getSchemaVersion(ctx, c)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	tables := []string{"assets", "dependencies", "collections", "asset_collections",
		"usage_events", "maintenance_log", "schema_version", "assets_fts"}
	for _, table := range tables {
		assert.Equal(t, 1, rawCount(t, s, "SELECT COUNT(*) FROM sqlite_master WHERE name = ?", table),
			"expected table %s to exist", table)
	}

	indexes := []string{"idx_assets_name", "idx_assets_type", "idx_assets_created", "idx_assets_accessed",
		"idx_usage_events_timestamp", "idx_usage_events_asset", "idx_dependencies_depends_on"}
	for _, index := range indexes {
		assert.Equal(t, 1, rawCount(t, s, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", index),
			"expected index %s to exist", index)
	}
	assert.True(t, s.FullTextEnabled())
}

func TestStoreReopenKeepsDataAndVersion(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)
	mustAdd(t, s, testAsset("tex_1", "Stone", AssetTexture))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, currentSchemaVersion, rawCount(t, s, "SELECT MAX(version) FROM schema_version"))
	assert.Equal(t, currentSchemaVersion, rawCount(t, s, "SELECT COUNT(*) FROM schema_version"))

	got, err := s.LookupAsset(context.Background(), "tex_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Stone", got.Name)
}

func TestMigrationFailureIsNotRecorded(t *testing.T) {
	cfg := testConfig(t)

	// A view named like a core table makes the index DDL fail
	db, err := sqlx.Open("sqlite", cfg.DatabasePath)
	require.NoError(t, err)
	_, err = db.Exec("CREATE VIEW assets AS SELECT 1 AS name, 1 AS asset_type")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMigrationFailed)

	db, err = sqlx.Open("sqlite", cfg.DatabasePath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'schema_version'"))
	assert.Equal(t, 0, n, "failed migration must not leave a version behind")
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.DatabasePath = "" }},
		{"no connections", func(c *Config) { c.MaxConnections = 0 }},
		{"odd page size", func(c *Config) { c.PageSize = 3000 }},
		{"negative timeout", func(c *Config) { c.BusyTimeoutMS = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := Open(cfg)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestOpenWithoutFullText(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.EnableFTS = false })
	assert.False(t, s.FullTextEnabled())
	assert.Equal(t, 0, rawCount(t, s, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'assets_fts'"))
}

func TestCloseStopsBackgroundTasks(t *testing.T) {
	s := openTestStore(t, func(c *Config) {
		c.VacuumInterval = 10 * time.Millisecond
		c.PlanCacheTTL = 10 * time.Millisecond
		c.StatsInterval = 10 * time.Millisecond
	})
	mustAdd(t, s, testAsset("a", "A", AssetMesh))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Close())
	_, err := s.LookupAsset(context.Background(), "a")
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestSQLiteVersion(t *testing.T) {
	s := openTestStore(t)
	version, err := s.SQLiteVersion(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, version)
}
