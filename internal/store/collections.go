package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/franz/asset-vault/internal/util"
)

// collectionIDPrefix marks collection IDs so they never collide with asset IDs
const collectionIDPrefix = "collection_"

type collectionRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Type        string `db:"collection_type"`
	Tags        string `db:"tags"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

const collectionColumns = "id, name, description, collection_type, tags, created_at, updated_at"

func (r *collectionRow) decode() (*Collection, error) {
	tags, err := decodeStrings("tags", r.Tags)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", r.ID, err)
	}
	return &Collection{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Type:        CollectionType(r.Type),
		Tags:        tags,
		AssetIDs:    []string{},
		CreatedAt:   unixTime(r.CreatedAt),
		UpdatedAt:   unixTime(r.UpdatedAt),
	}, nil
}

// refreshCollectionCacheSQL rebuilds an asset's denormalized collection_ids
// from the membership table.
const refreshCollectionCacheSQL = `
	UPDATE assets SET collection_ids = (
		SELECT COALESCE(json_group_array(collection_id), '[]') FROM (
			SELECT collection_id FROM asset_collections
			WHERE asset_id = ? ORDER BY collection_id
		)
	)
	WHERE id = ?`

// CreateCollection creates an empty collection with a fresh ID
func (s *Store) CreateCollection(ctx context.Context, name, description string, ctype CollectionType) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, opErr("create collection", ErrValidationFailed, errors.New("collection name is required"))
	}
	if ctype == "" {
		ctype = CustomCollectionType("General")
	}
	if _, err := ParseCollectionType(string(ctype)); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, opErr("create collection", ErrQueryFailed, fmt.Errorf("failed to generate id: %w", err))
	}

	now := secondPrecision(s.now())
	c := &Collection{
		ID:          collectionIDPrefix + id.String(),
		Name:        name,
		Description: description,
		Type:        ctype,
		Tags:        []string{},
		AssetIDs:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.transaction(ctx, "create collection "+name, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO collections (`+collectionColumns+`)
			VALUES (:id, :name, :description, :collection_type, '[]', :created_at, :updated_at)`,
			collectionRow{
				ID:          c.ID,
				Name:        c.Name,
				Description: c.Description,
				Type:        string(c.Type),
				CreatedAt:   now.Unix(),
				UpdatedAt:   now.Unix(),
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	util.DebugLog("Created collection %s (%s)", c.ID, c.Name)
	return c, nil
}

// GetCollection returns a collection with its asset IDs, or nil, nil if absent
func (s *Store) GetCollection(ctx context.Context, id string) (*Collection, error) {
	var coll *Collection
	err := s.withConn(ctx, "get collection "+id, func(c *PooledConn) error {
		var row collectionRow
		err := s.get(ctx, c, &row, "SELECT "+collectionColumns+" FROM collections WHERE id = ?", id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if coll, err = row.decode(); err != nil {
			return err
		}
		return s.selectAll(ctx, c, &coll.AssetIDs,
			"SELECT asset_id FROM asset_collections WHERE collection_id = ? ORDER BY asset_id", id)
	})
	if err != nil {
		return nil, err
	}
	return coll, nil
}

// ListCollections returns every collection sorted by name
func (s *Store) ListCollections(ctx context.Context) ([]*Collection, error) {
	collections := []*Collection{}
	err := s.withConn(ctx, "list collections", func(c *PooledConn) error {
		var rows []collectionRow
		if err := s.selectAll(ctx, c, &rows,
			"SELECT "+collectionColumns+" FROM collections ORDER BY name, id"); err != nil {
			return err
		}

		byID := make(map[string]*Collection, len(rows))
		for i := range rows {
			coll, err := rows[i].decode()
			if err != nil {
				return err
			}
			collections = append(collections, coll)
			byID[coll.ID] = coll
		}

		var members []struct {
			CollectionID string `db:"collection_id"`
			AssetID      string `db:"asset_id"`
		}
		if err := s.selectAll(ctx, c, &members,
			"SELECT collection_id, asset_id FROM asset_collections ORDER BY asset_id"); err != nil {
			return err
		}
		for _, m := range members {
			if coll, ok := byID[m.CollectionID]; ok {
				coll.AssetIDs = append(coll.AssetIDs, m.AssetID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collections, nil
}

// AddToCollection adds an asset to a collection. Both must exist.
func (s *Store) AddToCollection(ctx context.Context, collectionID, assetID string) error {
	return s.changeMembership(ctx, "add to collection", collectionID, assetID,
		"INSERT OR IGNORE INTO asset_collections (asset_id, collection_id, added_at) VALUES (?, ?, ?)",
		assetID, collectionID, s.now().Unix())
}

// RemoveFromCollection removes an asset from a collection. Both must exist;
// the asset itself is kept.
func (s *Store) RemoveFromCollection(ctx context.Context, collectionID, assetID string) error {
	return s.changeMembership(ctx, "remove from collection", collectionID, assetID,
		"DELETE FROM asset_collections WHERE asset_id = ? AND collection_id = ?",
		assetID, collectionID)
}

// changeMembership validates both ends, then applies the membership change,
// the collection timestamp bump and the asset cache refresh together.
func (s *Store) changeMembership(ctx context.Context, verb, collectionID, assetID, stmt string, args ...any) error {
	op := fmt.Sprintf("%s %s (%s)", verb, collectionID, assetID)
	return s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		var n int
		if err := s.get(ctx, tx, &n, "SELECT COUNT(*) FROM collections WHERE id = ?", collectionID); err != nil {
			return err
		}
		if n == 0 {
			return opErr(op, ErrValidationFailed, fmt.Errorf("collection %s does not exist", collectionID))
		}
		exists, err := s.assetExists(ctx, tx, assetID)
		if err != nil {
			return err
		}
		if !exists {
			return opErr(op, ErrValidationFailed, fmt.Errorf("asset %s does not exist", assetID))
		}

		if _, err := s.exec(ctx, tx, stmt, args...); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, "UPDATE collections SET updated_at = ? WHERE id = ?",
			s.now().Unix(), collectionID); err != nil {
			return err
		}
		_, err = s.exec(ctx, tx, refreshCollectionCacheSQL, assetID, assetID)
		return err
	})
}

// GetCollectionAssets returns the assets in a collection sorted by name
func (s *Store) GetCollectionAssets(ctx context.Context, collectionID string) ([]*Asset, error) {
	op := "get collection assets " + collectionID
	assets := []*Asset{}
	err := s.withConn(ctx, op, func(c *PooledConn) error {
		var n int
		if err := s.get(ctx, c, &n, "SELECT COUNT(*) FROM collections WHERE id = ?", collectionID); err != nil {
			return err
		}
		if n == 0 {
			return opErr(op, ErrValidationFailed, fmt.Errorf("collection %s does not exist", collectionID))
		}

		var rows []assetRow
		if err := s.selectAll(ctx, c, &rows, `
			SELECT `+prefixedAssetColumns("a")+`
			FROM assets a
			JOIN asset_collections ac ON ac.asset_id = a.id
			WHERE ac.collection_id = ?
			ORDER BY a.name, a.id`, collectionID); err != nil {
			return err
		}
		for i := range rows {
			a, err := rows[i].decode()
			if err != nil {
				return err
			}
			assets = append(assets, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// DeleteCollection removes a collection and its memberships. The member
// assets are kept. Deleting a missing collection is not an error.
func (s *Store) DeleteCollection(ctx context.Context, collectionID string) error {
	return s.transaction(ctx, "delete collection "+collectionID, func(tx *sqlx.Tx) error {
		var members []string
		if err := s.selectAll(ctx, tx, &members,
			"SELECT asset_id FROM asset_collections WHERE collection_id = ?", collectionID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, "DELETE FROM asset_collections WHERE collection_id = ?", collectionID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, "DELETE FROM collections WHERE id = ?", collectionID); err != nil {
			return err
		}
		for _, assetID := range members {
			if _, err := s.exec(ctx, tx, refreshCollectionCacheSQL, assetID, assetID); err != nil {
				return err
			}
		}
		return nil
	})
}
