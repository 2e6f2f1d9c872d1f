package store

// Schema v1 - core tables
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
);

-- One row per imported asset; structured fields are JSON text
CREATE TABLE IF NOT EXISTS assets (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  asset_type TEXT NOT NULL,
  file_path TEXT NOT NULL DEFAULT '',
  metadata TEXT NOT NULL,
  tags TEXT NOT NULL DEFAULT '[]',
  collection_ids TEXT NOT NULL DEFAULT '[]',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  accessed_at INTEGER NOT NULL,
  import_settings TEXT NOT NULL,
  quality_metrics TEXT NOT NULL,
  usage_count INTEGER NOT NULL DEFAULT 0,
  memory_usage INTEGER NOT NULL DEFAULT 0,
  disk_usage INTEGER NOT NULL DEFAULT 0,
  checksum TEXT NOT NULL DEFAULT '',
  version INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_assets_name ON assets(name);
CREATE INDEX IF NOT EXISTS idx_assets_type ON assets(asset_type);
CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at);
CREATE INDEX IF NOT EXISTS idx_assets_accessed ON assets(accessed_at);

-- Directed "requires" edges: asset_id needs depends_on
CREATE TABLE IF NOT EXISTS dependencies (
  asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  depends_on TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (asset_id, depends_on),
  CHECK (asset_id <> depends_on)
);

CREATE TABLE IF NOT EXISTS collections (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  collection_type TEXT NOT NULL,
  tags TEXT NOT NULL DEFAULT '[]',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

-- Authoritative membership; assets.collection_ids is a cache of this
CREATE TABLE IF NOT EXISTS asset_collections (
  asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
  added_at INTEGER NOT NULL,
  PRIMARY KEY (asset_id, collection_id)
);

CREATE INDEX IF NOT EXISTS idx_asset_collections_collection ON asset_collections(collection_id);

-- Append-only access log
CREATE TABLE IF NOT EXISTS usage_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  event_type TEXT NOT NULL,
  timestamp INTEGER NOT NULL,
  context TEXT
);

CREATE INDEX IF NOT EXISTS idx_usage_events_timestamp ON usage_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_events_asset ON usage_events(asset_id);
`

// Schema v2 - maintenance history and reverse-edge index
const schemaV2 = `
CREATE TABLE IF NOT EXISTS maintenance_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  operation TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL,
  details TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_maintenance_log_operation ON maintenance_log(operation, started_at);

-- Dependents lookups and "has dependents" checks walk edges backwards
CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON dependencies(depends_on);
`

// Full-text index over name and tags. The trigram tokenizer answers
// case-insensitive substring queries, so its matches are a superset of the
// structured filters. FTS rows share the rowid of their asset so trigger
// maintenance is a rowid lookup; asset_id is stored but not tokenized.
const schemaFTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS assets_fts USING fts5(
  asset_id UNINDEXED,
  name,
  tags,
  tokenize = 'trigram'
);

CREATE TRIGGER IF NOT EXISTS assets_fts_insert AFTER INSERT ON assets BEGIN
  INSERT INTO assets_fts(rowid, asset_id, name, tags) VALUES (new.rowid, new.id, new.name, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS assets_fts_update AFTER UPDATE OF name, tags ON assets BEGIN
  UPDATE assets_fts SET name = new.name, tags = new.tags WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS assets_fts_delete AFTER DELETE ON assets BEGIN
  DELETE FROM assets_fts WHERE rowid = old.rowid;
END;
`

// Older databases carry triggers keyed by asset_id; they are dropped before
// schemaFTS recreates them.
const dropFTSTriggers = `
DROP TRIGGER IF EXISTS assets_fts_insert;
DROP TRIGGER IF EXISTS assets_fts_update;
DROP TRIGGER IF EXISTS assets_fts_delete;
`

// migrations maps each schema version to its DDL, applied in order
var migrations = []struct {
	version int
	ddl     string
}{
	{1, schemaV1},
	{2, schemaV2},
}

const currentSchemaVersion = 2
