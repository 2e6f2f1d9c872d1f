package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search assets by name, type, tags, path, size and creation date",
	Long: `Search assets. All given filters must match:

  --name     case-insensitive substring of the asset name
  --tag      exact tag; repeat to require several tags
  --type     asset type (Mesh, Texture, Material, ...)
  --path     case-sensitive substring of the file path
  --min-size / --max-size   inclusive file size bounds in bytes
  --after / --before        inclusive creation date bounds (YYYY-MM-DD or RFC 3339)

Results are ordered by --sort (name, created, modified, size, usage).`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	addSearchFlags(searchCmd)
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Name substring")
	cmd.Flags().StringSlice("tag", nil, "Required tag (repeatable)")
	cmd.Flags().String("type", "", "Asset type")
	cmd.Flags().String("path", "", "File path substring")
	cmd.Flags().Int64("min-size", -1, "Minimum file size in bytes")
	cmd.Flags().Int64("max-size", -1, "Maximum file size in bytes")
	cmd.Flags().String("after", "", "Created at or after this date")
	cmd.Flags().String("before", "", "Created at or before this date")
	cmd.Flags().String("sort", string(store.SortByName), "Sort order: name, created, modified, size or usage")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of results (0 = all)")
	cmd.Flags().Bool("structured", false, "Bypass the full-text index")
	cmd.Flags().StringP("format", "f", "table", "Output format: table, json or yaml")
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
}

func searchQueryFromFlags(cmd *cobra.Command) (store.SearchQuery, error) {
	var q store.SearchQuery

	q.Name, _ = cmd.Flags().GetString("name")
	q.Tags, _ = cmd.Flags().GetStringSlice("tag")
	q.PathContains, _ = cmd.Flags().GetString("path")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	q.DisableFullText, _ = cmd.Flags().GetBool("structured")

	if typeName, _ := cmd.Flags().GetString("type"); typeName != "" {
		t, err := store.ParseAssetType(typeName)
		if err != nil {
			return q, err
		}
		q.Type = t
	}

	sortBy, _ := cmd.Flags().GetString("sort")
	q.SortBy = store.SortBy(strings.ToLower(sortBy))

	if v, _ := cmd.Flags().GetInt64("min-size"); v >= 0 {
		q.MinFileSize = &v
	}
	if v, _ := cmd.Flags().GetInt64("max-size"); v >= 0 {
		q.MaxFileSize = &v
	}

	var err error
	after, _ := cmd.Flags().GetString("after")
	if q.CreatedAfter, err = parseDate(after); err != nil {
		return q, err
	}
	before, _ := cmd.Flags().GetString("before")
	if q.CreatedBefore, err = parseDate(before); err != nil {
		return q, err
	}
	return q, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, err := searchQueryFromFlags(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	assets, err := db.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	if format != "table" {
		return writeStructured(cmd.OutOrStdout(), format, assets)
	}

	if len(assets) == 0 {
		util.WarnLog("No assets match")
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-28s %-10s %-32s %10s %6s\n", "ID", "TYPE", "NAME", "SIZE", "USES")
	for _, a := range assets {
		fmt.Fprintf(out, "%-28s %-10s %-32s %10s %6d\n",
			a.ID, a.Type, a.Name, util.FormatBytes(a.Metadata.FileSize), a.UsageCount)
	}
	util.InfoLog("%d assets", len(assets))
	return nil
}
