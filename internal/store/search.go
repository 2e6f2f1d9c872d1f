package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/franz/asset-vault/internal/util"
)

// Search returns assets matching every filter in q.
//
// With full-text search available and a name (three characters or more) or
// tag filter present, candidates come from the full-text index and every
// filter is re-applied to them; otherwise a single structured query runs.
// Both paths share the same semantics:
//   - name: ASCII case-insensitive substring
//   - tags: every tag must be present (exact match)
//   - path: case-sensitive substring
//   - size and creation ranges: inclusive, creation compared in whole seconds
//   - ordering per SortBy, ties broken by ID
func (s *Store) Search(ctx context.Context, query SearchQuery) ([]*Asset, error) {
	q, err := normalizeQuery(query)
	if err != nil {
		return nil, opErr("search", ErrValidationFailed, err)
	}

	if s.fts.Load() && !q.DisableFullText {
		if match := buildFTSQuery(q); match != "" {
			return s.searchFullText(ctx, q, match)
		}
	}
	return s.searchStructured(ctx, q)
}

func normalizeQuery(q SearchQuery) (*SearchQuery, error) {
	q.Name = norm.NFC.String(strings.TrimSpace(q.Name))
	q.Tags = NormalizeTags(q.Tags)
	if q.Type != "" && !q.Type.valid() {
		return nil, fmt.Errorf("unknown asset type %q", q.Type)
	}
	switch q.SortBy {
	case "":
		q.SortBy = SortByName
	case SortByName, SortByCreatedDate, SortByModifiedDate, SortBySize, SortByUsage:
	default:
		return nil, fmt.Errorf("unknown sort order %q", q.SortBy)
	}
	if q.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", q.Limit)
	}
	if q.MinFileSize != nil && q.MaxFileSize != nil && *q.MinFileSize > *q.MaxFileSize {
		return nil, fmt.Errorf("min file size %d exceeds max file size %d", *q.MinFileSize, *q.MaxFileSize)
	}
	return &q, nil
}

func (s *Store) searchStructured(ctx context.Context, q *SearchQuery) ([]*Asset, error) {
	var where []string
	var args []any

	if q.Name != "" {
		where = append(where, "instr(lower(name), lower(?)) > 0")
		args = append(args, q.Name)
	}
	if q.Type != "" {
		where = append(where, "asset_type = ?")
		args = append(args, string(q.Type))
	}
	for _, tag := range q.Tags {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(assets.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	if q.PathContains != "" {
		where = append(where, "instr(file_path, ?) > 0")
		args = append(args, q.PathContains)
	}
	if q.MinFileSize != nil {
		where = append(where, "json_extract(metadata, '$.file_size') >= ?")
		args = append(args, *q.MinFileSize)
	}
	if q.MaxFileSize != nil {
		where = append(where, "json_extract(metadata, '$.file_size') <= ?")
		args = append(args, *q.MaxFileSize)
	}
	if q.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, q.CreatedAfter.Unix())
	}
	if q.CreatedBefore != nil {
		where = append(where, "created_at <= ?")
		args = append(args, q.CreatedBefore.Unix())
	}

	query := "SELECT " + assetColumns + " FROM assets"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + sortClause(q.SortBy)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	assets := []*Asset{}
	err := s.withConn(ctx, "search", func(c *PooledConn) error {
		var rows []assetRow
		if err := s.selectAll(ctx, c, &rows, query, args...); err != nil {
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

	util.DebugLog("Structured search: %d matches", len(assets))
	return assets, nil
}

func sortClause(by SortBy) string {
	switch by {
	case SortByCreatedDate:
		return "created_at DESC, id"
	case SortByModifiedDate:
		return "updated_at DESC, id"
	case SortBySize:
		return "json_extract(metadata, '$.file_size') DESC, id"
	case SortByUsage:
		return "usage_count DESC, id"
	default:
		return "name, id"
	}
}

// matches applies the structured filters in Go, mirroring searchStructured
func (q *SearchQuery) matches(a *Asset) bool {
	if q.Name != "" && !strings.Contains(asciiLower(a.Name), asciiLower(q.Name)) {
		return false
	}
	if q.Type != "" && a.Type != q.Type {
		return false
	}
	for _, want := range q.Tags {
		found := false
		for _, tag := range a.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.PathContains != "" && !strings.Contains(a.FilePath, q.PathContains) {
		return false
	}
	if q.MinFileSize != nil && a.Metadata.FileSize < *q.MinFileSize {
		return false
	}
	if q.MaxFileSize != nil && a.Metadata.FileSize > *q.MaxFileSize {
		return false
	}
	if q.CreatedAfter != nil && a.CreatedAt.Unix() < q.CreatedAfter.Unix() {
		return false
	}
	if q.CreatedBefore != nil && a.CreatedAt.Unix() > q.CreatedBefore.Unix() {
		return false
	}
	return true
}

// sortAssets orders assets the way sortClause orders rows
func sortAssets(assets []*Asset, by SortBy) {
	sort.SliceStable(assets, func(i, j int) bool {
		a, b := assets[i], assets[j]
		switch by {
		case SortByCreatedDate:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case SortByModifiedDate:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		case SortBySize:
			if a.Metadata.FileSize != b.Metadata.FileSize {
				return a.Metadata.FileSize > b.Metadata.FileSize
			}
		case SortByUsage:
			if a.UsageCount != b.UsageCount {
				return a.UsageCount > b.UsageCount
			}
		default:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		}
		return a.ID < b.ID
	})
}

// asciiLower folds A-Z only, matching SQLite's built-in lower()
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
