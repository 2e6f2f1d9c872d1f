package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/franz/asset-vault/internal/util"
)

// migrate applies every pending migration in one transaction. A failure
// leaves the recorded version untouched.
func migrate(ctx context.Context, conn *sqlx.Conn) error {
	version, err := getSchemaVersion(ctx, conn)
	if err != nil {
		return opErr("read schema version", ErrMigrationFailed, err)
	}

	if version > currentSchemaVersion {
		return opErr("migrate", ErrMigrationFailed,
			fmt.Errorf("database schema v%d is newer than supported v%d", version, currentSchemaVersion))
	}
	if version == currentSchemaVersion {
		return nil
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return opErr("begin migration", ErrMigrationFailed, err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.ddl); err != nil {
			return opErr(fmt.Sprintf("apply schema v%d", m.version), ErrMigrationFailed, err)
		}
		if err := setSchemaVersion(ctx, tx, m.version); err != nil {
			return opErr("set schema version", ErrMigrationFailed, err)
		}
		util.InfoLog("Applied schema v%d", m.version)
	}

	if err := tx.Commit(); err != nil {
		return opErr("commit migration", ErrMigrationFailed, err)
	}

	return nil
}

// getSchemaVersion returns the current schema version (0 for a new database)
func getSchemaVersion(ctx context.Context, q sqlx.QueryerContext) (int, error) {
	var exists int
	err := sqlx.GetContext(ctx, q, &exists, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = sqlx.GetContext(ctx, q, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err != nil {
		return 0, err
	}

	return version, nil
}

func setSchemaVersion(ctx context.Context, tx *sqlx.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version, time.Now().Unix())
	return err
}
