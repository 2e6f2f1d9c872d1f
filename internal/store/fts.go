package store

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/franz/asset-vault/internal/util"
)

// trigramMin is the shortest phrase the trigram tokenizer can match
const trigramMin = 3

// rebuildFTS installs the full-text table and triggers if missing and
// repopulates the index from the assets table.
func (s *Store) rebuildFTS(ctx context.Context) error {
	return s.transaction(ctx, "rebuild full-text index", func(tx *sqlx.Tx) error {
		if _, err := s.exec(ctx, tx, dropFTSTriggers); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, schemaFTS); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, "DELETE FROM assets_fts"); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx,
			"INSERT INTO assets_fts (rowid, asset_id, name, tags) SELECT rowid, id, name, tags FROM assets")
		if err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, "INSERT INTO assets_fts (assets_fts) VALUES ('optimize')"); err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		util.DebugLog("Full-text index holds %d assets", n)
		return nil
	})
}

// ftsPhrase quotes text as an FTS5 string
func ftsPhrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// buildFTSQuery derives a MATCH expression from the name and tag filters.
// It returns "" when neither can be expressed, which sends the search down
// the structured path.
func buildFTSQuery(q *SearchQuery) string {
	var parts []string
	if utf8.RuneCountInString(q.Name) >= trigramMin {
		parts = append(parts, "name:"+ftsPhrase(q.Name))
	}
	for _, tag := range q.Tags {
		// Tags are indexed as their JSON array text; match the encoded
		// element including its quotes.
		encoded, err := json.Marshal(tag)
		if err != nil {
			continue
		}
		parts = append(parts, "tags:"+ftsPhrase(string(encoded)))
	}
	return strings.Join(parts, " AND ")
}

func (s *Store) searchFullText(ctx context.Context, q *SearchQuery, match string) ([]*Asset, error) {
	candidates := []*Asset{}
	err := s.withConn(ctx, "full-text search", func(c *PooledConn) error {
		var rows []assetRow
		if err := s.selectAll(ctx, c, &rows, `
			SELECT `+prefixedAssetColumns("a")+`
			FROM assets_fts
			JOIN assets a ON a.rowid = assets_fts.rowid
			WHERE assets_fts MATCH ?
			ORDER BY rank`, match); err != nil {
			return err
		}
		for i := range rows {
			a, err := rows[i].decode()
			if err != nil {
				return err
			}
			if q.matches(a) {
				candidates = append(candidates, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.DebugLog("Full-text search %q: %d matches", match, len(candidates))
	sortAssets(candidates, q.SortBy)
	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}
