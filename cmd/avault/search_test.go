package main

import (
	"testing"
	"time"

	"github.com/franz/asset-vault/internal/store"
	"github.com/spf13/cobra"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T12:30:00Z", want: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{in: "yesterday", wantErr: true},
		{in: "03/01/2024", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDate(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDate(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if got, err := parseDate(""); got != nil || err != nil {
		t.Errorf("parseDate(\"\") = %v, %v; want nil, nil", got, err)
	}
}

func newSearchTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "search"}
	addSearchFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	return cmd
}

func TestSearchQueryFromFlags(t *testing.T) {
	cmd := newSearchTestCmd(t,
		"--name", "stone",
		"--tag", "rough", "--tag", "dark wood",
		"--type", "texture",
		"--path", "/textures/",
		"--min-size", "0",
		"--max-size", "5000",
		"--after", "2024-01-01",
		"--sort", "Usage",
		"-n", "5",
		"--structured",
	)

	q, err := searchQueryFromFlags(cmd)
	if err != nil {
		t.Fatalf("searchQueryFromFlags failed: %v", err)
	}

	if q.Name != "stone" || q.PathContains != "/textures/" {
		t.Errorf("Unexpected text filters: %+v", q)
	}
	if len(q.Tags) != 2 || q.Tags[1] != "dark wood" {
		t.Errorf("Unexpected tags: %v", q.Tags)
	}
	if q.Type != store.AssetTexture {
		t.Errorf("Expected Texture, got %s", q.Type)
	}
	if q.MinFileSize == nil || *q.MinFileSize != 0 || q.MaxFileSize == nil || *q.MaxFileSize != 5000 {
		t.Errorf("Unexpected size bounds: %v %v", q.MinFileSize, q.MaxFileSize)
	}
	if q.CreatedAfter == nil || q.CreatedBefore != nil {
		t.Errorf("Unexpected date bounds: %v %v", q.CreatedAfter, q.CreatedBefore)
	}
	if q.SortBy != store.SortByUsage || q.Limit != 5 || !q.DisableFullText {
		t.Errorf("Unexpected options: sort=%s limit=%d structured=%v", q.SortBy, q.Limit, q.DisableFullText)
	}
}

func TestSearchQueryFromFlags_Defaults(t *testing.T) {
	q, err := searchQueryFromFlags(newSearchTestCmd(t))
	if err != nil {
		t.Fatalf("searchQueryFromFlags failed: %v", err)
	}
	if q.MinFileSize != nil || q.MaxFileSize != nil || q.Type != "" || q.SortBy != store.SortByName {
		t.Errorf("Unexpected defaults: %+v", q)
	}
}

func TestSearchQueryFromFlags_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"--type", "hologram"},
		{"--after", "soon"},
		{"--before", "2024-13-45"},
	} {
		if _, err := searchQueryFromFlags(newSearchTestCmd(t, args...)); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}
