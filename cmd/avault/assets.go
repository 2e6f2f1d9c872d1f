package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/franz/asset-vault/internal/report"
	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var putCmd = &cobra.Command{
	Use:   "put <manifest>...",
	Short: "Add or update assets from YAML or JSON manifests",
	Long: `Add or update assets described in one or more manifest files.

A manifest lists assets and, optionally, dependency edges between them:

  assets:
    - id: tex_stone_01
      name: Stone_Texture_01
      type: Texture
      file_path: textures/stone_01.png
      tags: [stone, environment]
  dependencies:
    - asset: mat_stone
      depends_on: tex_stone_01

Relative file paths are resolved against the manifest's directory. When an
asset's file exists, a missing checksum or file size is computed from it.
JSON manifests use the same field names.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPut,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove assets with their dependency edges and memberships",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

var accessCmd = &cobra.Command{
	Use:   "access <id>",
	Short: "Record a usage event for an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccess,
}

func init() {
	rootCmd.AddCommand(putCmd, showCmd, removeCmd, accessCmd)

	showCmd.Flags().StringP("format", "f", "yaml", "Output format: yaml or json")
	showCmd.Flags().Bool("track", false, "Count this lookup as a View access")

	accessCmd.Flags().String("event", string(store.EventLoad), "Event type: Load, Unload, Modify, View or Export")
	accessCmd.Flags().String("note", "", "Free-form context stored with the event")
}

// manifest is the on-disk format read by put
type manifest struct {
	Assets       []*store.Asset `yaml:"assets"`
	Dependencies []manifestEdge `yaml:"dependencies"`
}

type manifestEdge struct {
	Asset     string `yaml:"asset"`
	DependsOn string `yaml:"depends_on"`
}

// loadManifest parses a manifest. YAML is a superset of JSON, so one decoder
// serves both.
func loadManifest(fs afero.Fs, path string) (*manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	for i, a := range m.Assets {
		if a == nil {
			return nil, fmt.Errorf("manifest %s: asset %d is empty", path, i+1)
		}
	}
	return &m, nil
}

// fillFileFacts resolves the asset's path against baseDir and fills in
// checksum, file size and disk usage from the file when they are missing.
func fillFileFacts(fs afero.Fs, baseDir string, a *store.Asset) {
	if a.FilePath == "" {
		return
	}
	if !filepath.IsAbs(a.FilePath) {
		a.FilePath = filepath.Join(baseDir, a.FilePath)
	}

	exists, err := afero.Exists(fs, a.FilePath)
	if err != nil || !exists {
		util.WarnLog("Asset %s: file %s not found, keeping manifest values", a.ID, a.FilePath)
		return
	}

	if a.Checksum == "" {
		sum, err := util.ContentChecksum(fs, a.FilePath)
		if err != nil {
			util.WarnLog("Asset %s: %v", a.ID, err)
		} else {
			a.Checksum = sum
		}
	}
	if a.Metadata.FileSize == 0 {
		if size, err := util.FileSize(fs, a.FilePath); err == nil {
			a.Metadata.FileSize = size
		}
	}
	if a.DiskUsage == 0 {
		a.DiskUsage = a.Metadata.FileSize
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	fs := afero.NewOsFs()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	events := openEventLogger()
	defer events.Close()

	stored, failed := 0, 0
	for _, path := range args {
		m, err := loadManifest(fs, path)
		if err != nil {
			return err
		}
		baseDir := filepath.Dir(path)
		util.InfoLog("Importing %d assets from %s", len(m.Assets), path)

		for _, a := range m.Assets {
			fillFileFacts(fs, baseDir, a)
			err := putAsset(ctx, db, a)
			events.LogPut(a, err)
			if err != nil {
				util.ErrorLog("Failed to store %s: %v", a.ID, err)
				failed++
				continue
			}
			util.DebugLog("Stored %s (version %d)", a.ID, a.Version)
			stored++
		}

		for _, edge := range m.Dependencies {
			if err := db.AddDependency(ctx, edge.Asset, edge.DependsOn); err != nil {
				util.ErrorLog("Failed to add dependency %s -> %s: %v", edge.Asset, edge.DependsOn, err)
				failed++
			}
		}
	}

	util.SuccessLog("Stored %d assets", stored)
	if failed > 0 {
		return fmt.Errorf("%d entries could not be stored", failed)
	}
	return nil
}

// putAsset retries writes that lost a lock race
func putAsset(ctx context.Context, db *store.Store, a *store.Asset) error {
	return util.Retry(util.DefaultRetryConfig(), func() error {
		return db.AddOrUpdateAsset(ctx, a)
	}, "store asset "+a.ID)
}

func runShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	track, _ := cmd.Flags().GetBool("track")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var asset *store.Asset
	if track {
		asset, err = db.GetAsset(cmd.Context(), args[0])
	} else {
		asset, err = db.LookupAsset(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}
	if asset == nil {
		return fmt.Errorf("asset %s not found", args[0])
	}
	return writeStructured(cmd.OutOrStdout(), format, asset)
}

func runRemove(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	events := openEventLogger()
	defer events.Close()

	for _, id := range args {
		if err := db.RemoveAsset(cmd.Context(), id); err != nil {
			events.LogError(report.EventRemove, id, err)
			return err
		}
		events.LogRemove(id)
		util.SuccessLog("Removed %s", id)
	}
	return nil
}

func runAccess(cmd *cobra.Command, args []string) error {
	eventName, _ := cmd.Flags().GetString("event")
	note, _ := cmd.Flags().GetString("note")

	event, err := store.ParseEventType(eventName)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RecordAccess(cmd.Context(), args[0], event, note); err != nil {
		return err
	}
	util.SuccessLog("Recorded %s for %s", event, args[0])
	return nil
}
