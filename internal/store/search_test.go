package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(assets []*Asset) []string {
	out := []string{}
	for _, a := range assets {
		out = append(out, a.ID)
	}
	return out
}

// searchBoth runs q through the full-text and structured paths and
// requires identical results.
func searchBoth(t *testing.T, s *Store, q SearchQuery) []string {
	t.Helper()
	ctx := context.Background()

	fullText, err := s.Search(ctx, q)
	require.NoError(t, err)

	q.DisableFullText = true
	structured, err := s.Search(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, ids(structured), ids(fullText), "search paths disagree for %+v", q)
	return ids(structured)
}

func seedSearchAssets(t *testing.T, s *Store) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	stone := testAsset("tex_stone", "Stone_Texture_01", AssetTexture)
	stone.Tags = []string{"stone", "rough", "dark wood"}
	stone.FilePath = "/textures/nature/stone_01.png"
	stone.Metadata.FileSize = 4096
	stone.CreatedAt = base

	wood := testAsset("tex_wood", "Wood_Plank", AssetTexture)
	wood.Tags = []string{"wood", "rough"}
	wood.FilePath = "/textures/nature/wood.png"
	wood.Metadata.FileSize = 2048
	wood.CreatedAt = base.Add(24 * time.Hour)

	mesh := testAsset("mesh_stone", "stone wall", AssetMesh)
	mesh.Tags = []string{"stone"}
	mesh.FilePath = "/meshes/Stone_Wall.fbx"
	mesh.Metadata.FileSize = 100000
	mesh.CreatedAt = base.Add(48 * time.Hour)

	mustAdd(t, s, stone, wood, mesh)
}

func TestSearchStoneAndWood(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustAdd(t, s,
		testAsset("stone", "Stone_Texture_01", AssetTexture),
		testAsset("wood", "Wood_Plank", AssetTexture),
	)

	assert.Equal(t, []string{"stone"}, searchBoth(t, s, SearchQuery{Name: "Stone"}))

	fullText, err := s.Search(ctx, SearchQuery{Name: "Stone"})
	require.NoError(t, err)
	require.Len(t, fullText, 1)
	assert.Equal(t, "Stone_Texture_01", fullText[0].Name)
}

func TestSearchFilters(t *testing.T) {
	s := openTestStore(t)
	seedSearchAssets(t, s)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		query SearchQuery
		want  []string
	}{
		{"name is case-insensitive substring", SearchQuery{Name: "STONE"}, []string{"tex_stone", "mesh_stone"}},
		{"infix name", SearchQuery{Name: "tone"}, []string{"tex_stone", "mesh_stone"}},
		{"short name", SearchQuery{Name: "wo"}, []string{"tex_wood"}},
		{"type", SearchQuery{Type: AssetMesh}, []string{"mesh_stone"}},
		{"single tag", SearchQuery{Tags: []string{"rough"}}, []string{"tex_stone", "tex_wood"}},
		{"tags are ANDed", SearchQuery{Tags: []string{"rough", "stone"}}, []string{"tex_stone"}},
		{"tag with space", SearchQuery{Tags: []string{"dark wood"}}, []string{"tex_stone"}},
		{"tag is exact", SearchQuery{Tags: []string{"woo"}}, []string{}},
		{"tag is case-sensitive", SearchQuery{Tags: []string{"Stone"}}, []string{}},
		{"path is case-sensitive", SearchQuery{PathContains: "Stone"}, []string{"mesh_stone"}},
		{"name and path", SearchQuery{Name: "stone", PathContains: "/textures/"}, []string{"tex_stone"}},
		{"size range inclusive", SearchQuery{MinFileSize: ptr(int64(2048)), MaxFileSize: ptr(int64(4096))},
			[]string{"tex_stone", "tex_wood"}},
		{"name with size", SearchQuery{Name: "stone", MinFileSize: ptr(int64(5000))}, []string{"mesh_stone"}},
		{"created range inclusive", SearchQuery{CreatedAfter: &base, CreatedBefore: ptr(base.Add(24 * time.Hour))},
			[]string{"tex_stone", "tex_wood"}},
		{"tag with created after", SearchQuery{Tags: []string{"stone"}, CreatedAfter: ptr(base.Add(time.Hour))},
			[]string{"mesh_stone"}},
		{"no match", SearchQuery{Name: "metal"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchBoth(t, s, tt.query)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestSearchSortingAndLimit(t *testing.T) {
	s := openTestStore(t)
	seedSearchAssets(t, s)
	ctx := context.Background()

	_, err := s.GetAsset(ctx, "tex_wood")
	require.NoError(t, err)

	tests := []struct {
		sort SortBy
		want []string
	}{
		{SortByName, []string{"tex_stone", "tex_wood", "mesh_stone"}}, // byte order: upper case first
		{SortByCreatedDate, []string{"mesh_stone", "tex_wood", "tex_stone"}},
		{SortBySize, []string{"mesh_stone", "tex_stone", "tex_wood"}},
		{SortByUsage, []string{"tex_wood", "mesh_stone", "tex_stone"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			assert.Equal(t, tt.want, searchBoth(t, s, SearchQuery{SortBy: tt.sort}))
			// Same ordering when candidates come from the full-text index
			assert.Equal(t, filterIDs(tt.want, "tex_stone", "tex_wood"),
				searchBoth(t, s, SearchQuery{Tags: []string{"rough"}, SortBy: tt.sort}))
		})
	}

	assert.Equal(t, []string{"tex_stone"}, searchBoth(t, s, SearchQuery{Tags: []string{"rough"}, Limit: 1}))
	assert.Len(t, searchBoth(t, s, SearchQuery{Limit: 2}), 2)
}

func filterIDs(ordered []string, keep ...string) []string {
	set := map[string]bool{}
	for _, k := range keep {
		set[k] = true
	}
	out := []string{}
	for _, id := range ordered {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}

func TestSearchIndexFollowsUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustAdd(t, s, testAsset("a", "Granite Block", AssetMesh))

	assert.Equal(t, []string{"a"}, searchBoth(t, s, SearchQuery{Name: "granite"}))

	mustAdd(t, s, testAsset("a", "Marble Block", AssetMesh))
	assert.Empty(t, searchBoth(t, s, SearchQuery{Name: "granite"}))
	assert.Equal(t, []string{"a"}, searchBoth(t, s, SearchQuery{Name: "marble"}))

	// Access bumps do not touch the index
	_, err := s.GetAsset(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, rawCount(t, s, "SELECT COUNT(*) FROM assets_fts"))

	require.NoError(t, s.RemoveAsset(ctx, "a"))
	assert.Empty(t, searchBoth(t, s, SearchQuery{Name: "marble"}))
}

func TestSearchIndexSharesAssetRowid(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	mustAdd(t, s,
		testAsset("a", "Granite Block", AssetMesh),
		testAsset("b", "Oak Plank", AssetMesh),
	)

	// Triggers keyed by asset_id, as older databases carry them
	err = s.withConn(ctx, "install old triggers", func(c *PooledConn) error {
		_, err := s.exec(ctx, c, dropFTSTriggers+`
			CREATE TRIGGER assets_fts_update AFTER UPDATE OF name, tags ON assets BEGIN
			  UPDATE assets_fts SET name = new.name, tags = new.tags WHERE asset_id = old.id;
			END;`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	const keyed = `SELECT COUNT(*) FROM assets_fts f JOIN assets a ON a.rowid = f.rowid AND a.id = f.asset_id`
	assert.Equal(t, 2, rawCount(t, s, keyed))
	assert.Equal(t, 3, rawCount(t, s,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name LIKE 'assets_fts_%' AND sql LIKE '%rowid%'"))

	mustAdd(t, s, testAsset("a", "Marble Block", AssetMesh), testAsset("c", "Pine Plank", AssetMesh))
	require.NoError(t, s.RemoveAsset(ctx, "b"))
	assert.Equal(t, 2, rawCount(t, s, keyed))
	assert.Equal(t, 2, rawCount(t, s, "SELECT COUNT(*) FROM assets_fts"))
	assert.Equal(t, []string{"a"}, searchBoth(t, s, SearchQuery{Name: "marble"}))
	assert.Equal(t, []string{"c"}, searchBoth(t, s, SearchQuery{Name: "plank"}))
}

func TestSearchWithoutFullText(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.EnableFTS = false })
	mustAdd(t, s,
		testAsset("stone", "Stone_Texture_01", AssetTexture),
		testAsset("wood", "Wood_Plank", AssetTexture),
	)

	got, err := s.Search(context.Background(), SearchQuery{Name: "stone"})
	require.NoError(t, err)
	assert.Equal(t, []string{"stone"}, ids(got))
}

func TestSearchValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, q := range []SearchQuery{
		{Type: "Hologram"},
		{SortBy: "random"},
		{Limit: -1},
		{MinFileSize: ptr(int64(10)), MaxFileSize: ptr(int64(5))},
	} {
		_, err := s.Search(ctx, q)
		assert.ErrorIs(t, err, ErrValidationFailed, "%+v", q)
	}
}

func TestBuildFTSQuery(t *testing.T) {
	assert.Equal(t, "", buildFTSQuery(&SearchQuery{Name: "ab"}))
	assert.Equal(t, `name:"stone"`, buildFTSQuery(&SearchQuery{Name: "stone"}))
	assert.Equal(t, `name:"say ""hi"""`, buildFTSQuery(&SearchQuery{Name: `say "hi"`}))
	assert.Equal(t, `tags:"""rough""" AND tags:"""dark wood"""`,
		buildFTSQuery(&SearchQuery{Tags: []string{"rough", "dark wood"}}))
}
