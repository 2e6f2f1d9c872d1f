package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/asset-vault/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags puts every flag back to its default so one Execute does not
// leak into the next
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

const testManifest = `assets:
  - id: tex_stone
    name: Stone_Texture_01
    type: Texture
    file_path: textures/stone.png
    tags: [stone, environment]
    memory_usage: 4096
  - id: mat_stone
    name: Stone Material
    type: Material
dependencies:
  - asset: mat_stone
    depends_on: tex_stone
`

func setupVault(t *testing.T) (dbPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	dbPath = filepath.Join(dir, "vault.db")

	if err := os.MkdirAll(filepath.Join(dir, "textures"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "textures", "stone.png"), []byte("png-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	manifestPath := filepath.Join(dir, "assets.yaml")
	if err := os.WriteFile(manifestPath, []byte(testManifest), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "--db", dbPath, "put", manifestPath); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	return dbPath, dir
}

func TestCLI_PutAndShow(t *testing.T) {
	dbPath, dir := setupVault(t)

	out, err := runCLI(t, "--db", dbPath, "show", "tex_stone", "--format", "json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}

	var asset store.Asset
	if err := json.Unmarshal([]byte(out), &asset); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out)
	}

	sum := sha256.Sum256([]byte("png-bytes"))
	if asset.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected checksum of file content, got %q", asset.Checksum)
	}
	if asset.Metadata.FileSize != int64(len("png-bytes")) {
		t.Errorf("Expected file size %d, got %d", len("png-bytes"), asset.Metadata.FileSize)
	}
	if asset.FilePath != filepath.Join(dir, "textures", "stone.png") {
		t.Errorf("Expected path resolved against manifest dir, got %s", asset.FilePath)
	}
	if asset.Version != 1 {
		t.Errorf("Expected version 1, got %d", asset.Version)
	}

	if _, err := runCLI(t, "--db", dbPath, "show", "missing"); err == nil {
		t.Error("Expected error for unknown asset")
	}
}

func TestCLI_Search(t *testing.T) {
	dbPath, _ := setupVault(t)

	for _, structured := range []bool{false, true} {
		args := []string{"--db", dbPath, "search", "--name", "stone", "--format", "json"}
		if structured {
			args = append(args, "--structured")
		}
		out, err := runCLI(t, args...)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}

		var assets []store.Asset
		if err := json.Unmarshal([]byte(out), &assets); err != nil {
			t.Fatalf("search output is not JSON: %v\n%s", err, out)
		}
		if len(assets) != 2 || assets[0].ID != "mat_stone" || assets[1].ID != "tex_stone" {
			t.Errorf("structured=%v: unexpected results %+v", structured, assets)
		}
	}

	out, err := runCLI(t, "--db", dbPath, "search", "--tag", "environment", "--type", "texture", "--format", "json")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, `"tex_stone"`) || strings.Contains(out, `"mat_stone"`) {
		t.Errorf("Expected only tex_stone, got %s", out)
	}

	if _, err := runCLI(t, "--db", dbPath, "search", "--type", "hologram"); err == nil {
		t.Error("Expected error for unknown type")
	}
}

func TestCLI_Dependencies(t *testing.T) {
	dbPath, _ := setupVault(t)

	out, err := runCLI(t, "--db", dbPath, "deps", "graph", "mat_stone", "--format", "dot")
	if err != nil {
		t.Fatalf("deps graph failed: %v", err)
	}
	if !strings.Contains(out, `"mat_stone" -> "tex_stone";`) {
		t.Errorf("Expected edge in DOT output, got:\n%s", out)
	}

	if _, err := runCLI(t, "--db", dbPath, "deps", "add", "tex_stone", "mat_stone"); err == nil {
		t.Error("Expected cycle to be rejected")
	}

	out, err = runCLI(t, "--db", dbPath, "deps", "dependents", "tex_stone")
	if err != nil {
		t.Fatalf("deps dependents failed: %v", err)
	}
	if strings.TrimSpace(out) != "mat_stone" {
		t.Errorf("Expected mat_stone as dependent, got %q", out)
	}

	if _, err := runCLI(t, "--db", dbPath, "deps", "remove", "mat_stone", "tex_stone"); err != nil {
		t.Fatalf("deps remove failed: %v", err)
	}
	out, err = runCLI(t, "--db", dbPath, "deps", "list", "mat_stone")
	if err != nil {
		t.Fatalf("deps list failed: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("Expected no dependencies, got %q", out)
	}
}

func TestCLI_Collections(t *testing.T) {
	dbPath, _ := setupVault(t)

	out, err := runCLI(t, "--db", dbPath, "collection", "create", "Rocks", "--type", "environment")
	if err != nil {
		t.Fatalf("collection create failed: %v", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("Expected collection ID on stdout")
	}

	if _, err := runCLI(t, "--db", dbPath, "collection", "add", id, "tex_stone", "mat_stone"); err != nil {
		t.Fatalf("collection add failed: %v", err)
	}
	if _, err := runCLI(t, "--db", dbPath, "collection", "remove", id, "mat_stone"); err != nil {
		t.Fatalf("collection remove failed: %v", err)
	}

	out, err = runCLI(t, "--db", dbPath, "collection", "show", id, "--format", "json")
	if err != nil {
		t.Fatalf("collection show failed: %v", err)
	}
	var view struct {
		Type     string   `json:"type"`
		AssetIDs []string `json:"asset_ids"`
		Assets   []struct {
			ID string `json:"id"`
		} `json:"assets"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("collection show output is not JSON: %v\n%s", err, out)
	}
	if view.Type != "Environment" {
		t.Errorf("Expected type Environment, got %s", view.Type)
	}
	if len(view.Assets) != 1 || view.Assets[0].ID != "tex_stone" {
		t.Errorf("Expected tex_stone as only member, got %+v", view.Assets)
	}

	if _, err := runCLI(t, "--db", dbPath, "collection", "delete", id); err != nil {
		t.Fatalf("collection delete failed: %v", err)
	}
	if _, err := runCLI(t, "--db", dbPath, "show", "tex_stone"); err != nil {
		t.Errorf("Deleting a collection must keep its assets: %v", err)
	}
}

func TestCLI_AccessAndUsage(t *testing.T) {
	dbPath, _ := setupVault(t)

	if _, err := runCLI(t, "--db", dbPath, "access", "tex_stone", "--event", "view"); err != nil {
		t.Fatalf("access failed: %v", err)
	}
	if _, err := runCLI(t, "--db", dbPath, "access", "tex_stone", "--event", "teleport"); err == nil {
		t.Error("Expected error for unknown event type")
	}

	out, err := runCLI(t, "--db", dbPath, "usage", "--format", "json")
	if err != nil {
		t.Fatalf("usage failed: %v", err)
	}
	var usage store.UsageAnalytics
	if err := json.Unmarshal([]byte(out), &usage); err != nil {
		t.Fatalf("usage output is not JSON: %v\n%s", err, out)
	}
	if usage.EventTypeDistribution["View"] != 1 {
		t.Errorf("Expected one View event, got %v", usage.EventTypeDistribution)
	}
}

func TestCLI_RemoveAndMaintenance(t *testing.T) {
	dbPath, dir := setupVault(t)

	if _, err := runCLI(t, "--db", dbPath, "remove", "tex_stone"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := runCLI(t, "--db", dbPath, "show", "tex_stone"); err == nil {
		t.Error("Expected removed asset to be gone")
	}

	backupPath := filepath.Join(dir, "backups", "vault.bak")
	out, err := runCLI(t, "--db", dbPath, "backup", backupPath)
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if strings.TrimSpace(out) != backupPath {
		t.Errorf("Expected backup path on stdout, got %q", out)
	}

	if _, err := runCLI(t, "--db", dbPath, "restore", backupPath); err == nil {
		t.Error("Expected restore without --yes to be refused")
	}
	if _, err := runCLI(t, "--db", dbPath, "restore", backupPath, "--yes"); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	out, err = runCLI(t, "--db", dbPath, "optimize", "--format", "json")
	if err != nil {
		t.Fatalf("optimize failed: %v", err)
	}
	var r store.OptimizationReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("optimize output is not JSON: %v\n%s", err, out)
	}
	if r.FinalAssetCount != 1 {
		t.Errorf("Expected 1 asset after optimize, got %d", r.FinalAssetCount)
	}

	if _, err := runCLI(t, "--db", dbPath, "health"); err != nil {
		t.Errorf("health failed on a consistent database: %v", err)
	}

	reportDir := filepath.Join(dir, "report")
	if _, err := runCLI(t, "--db", dbPath, "report", "--out", reportDir); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(reportDir, "summary.md")); err != nil {
		t.Errorf("Expected summary.md: %v", err)
	}
}

func TestCLI_EventLog(t *testing.T) {
	dbPath, dir := setupVault(t)
	eventDir := filepath.Join(dir, "events")

	if _, err := runCLI(t, "--db", dbPath, "--event-log", eventDir, "remove", "mat_stone"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(eventDir, "events-*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("Expected one event file, got %v (%v)", files, err)
	}
	content, _ := os.ReadFile(files[0])
	if !strings.Contains(string(content), `"event":"remove"`) || !strings.Contains(string(content), `"asset_id":"mat_stone"`) {
		t.Errorf("Expected remove event, got %s", content)
	}
}
