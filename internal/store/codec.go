package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// codecVersion is the envelope version written for structured columns.
// Decoding refuses envelopes without a version or with a newer one.
const codecVersion = 1

type metadataRecord struct {
	V int `json:"v"`
	AssetMetadata
}

type importSettingsRecord struct {
	V int `json:"v"`
	ImportSettings
}

type qualityMetricsRecord struct {
	V int `json:"v"`
	QualityMetrics
}

func encodeJSON(field string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", field, err)
	}
	return string(b), nil
}

// decodeVersioned checks the envelope version before decoding into dst
func decodeVersioned(field, text string, dst any) error {
	var head struct {
		V *int `json:"v"`
	}
	if err := json.Unmarshal([]byte(text), &head); err != nil {
		return fmt.Errorf("failed to decode %s: %w", field, err)
	}
	if head.V == nil {
		return fmt.Errorf("failed to decode %s: missing format version", field)
	}
	if *head.V < 1 || *head.V > codecVersion {
		return fmt.Errorf("failed to decode %s: unsupported format version %d", field, *head.V)
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", field, err)
	}
	return nil
}

func decodeStrings(field, text string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", field, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// assetRow is the on-disk shape of an asset
type assetRow struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	AssetType      string `db:"asset_type"`
	FilePath       string `db:"file_path"`
	Metadata       string `db:"metadata"`
	Tags           string `db:"tags"`
	CollectionIDs  string `db:"collection_ids"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
	AccessedAt     int64  `db:"accessed_at"`
	ImportSettings string `db:"import_settings"`
	QualityMetrics string `db:"quality_metrics"`
	UsageCount     int64  `db:"usage_count"`
	MemoryUsage    int64  `db:"memory_usage"`
	DiskUsage      int64  `db:"disk_usage"`
	Checksum       string `db:"checksum"`
	Version        int64  `db:"version"`
}

const assetColumns = `id, name, asset_type, file_path, metadata, tags, collection_ids,
	created_at, updated_at, accessed_at, import_settings, quality_metrics,
	usage_count, memory_usage, disk_usage, checksum, version`

// prefixedAssetColumns qualifies assetColumns with a table alias
func prefixedAssetColumns(alias string) string {
	cols := strings.Split(assetColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func encodeAsset(a *Asset) (*assetRow, error) {
	metadata, err := encodeJSON("metadata", metadataRecord{V: codecVersion, AssetMetadata: a.Metadata})
	if err != nil {
		return nil, err
	}
	tags, err := encodeJSON("tags", a.Tags)
	if err != nil {
		return nil, err
	}
	collections, err := encodeJSON("collection_ids", a.CollectionIDs)
	if err != nil {
		return nil, err
	}
	settings, err := encodeJSON("import_settings", importSettingsRecord{V: codecVersion, ImportSettings: a.ImportSettings})
	if err != nil {
		return nil, err
	}
	metrics, err := encodeJSON("quality_metrics", qualityMetricsRecord{V: codecVersion, QualityMetrics: a.QualityMetrics})
	if err != nil {
		return nil, err
	}

	return &assetRow{
		ID:             a.ID,
		Name:           a.Name,
		AssetType:      string(a.Type),
		FilePath:       a.FilePath,
		Metadata:       metadata,
		Tags:           tags,
		CollectionIDs:  collections,
		CreatedAt:      a.CreatedAt.Unix(),
		UpdatedAt:      a.UpdatedAt.Unix(),
		AccessedAt:     a.AccessedAt.Unix(),
		ImportSettings: settings,
		QualityMetrics: metrics,
		UsageCount:     a.UsageCount,
		MemoryUsage:    a.MemoryUsage,
		DiskUsage:      a.DiskUsage,
		Checksum:       a.Checksum,
		Version:        a.Version,
	}, nil
}

// decode maps a row to an Asset. Any undecodable column fails the whole row.
func (r *assetRow) decode() (*Asset, error) {
	t := AssetType(r.AssetType)
	if !t.valid() {
		return nil, fmt.Errorf("asset %s: unknown asset type %q", r.ID, r.AssetType)
	}

	a := &Asset{
		ID:          r.ID,
		Name:        r.Name,
		Type:        t,
		FilePath:    r.FilePath,
		CreatedAt:   unixTime(r.CreatedAt),
		UpdatedAt:   unixTime(r.UpdatedAt),
		AccessedAt:  unixTime(r.AccessedAt),
		UsageCount:  r.UsageCount,
		MemoryUsage: r.MemoryUsage,
		DiskUsage:   r.DiskUsage,
		Checksum:    r.Checksum,
		Version:     r.Version,
	}

	var meta metadataRecord
	if err := decodeVersioned("metadata", r.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("asset %s: %w", r.ID, err)
	}
	a.Metadata = meta.AssetMetadata

	var settings importSettingsRecord
	if err := decodeVersioned("import_settings", r.ImportSettings, &settings); err != nil {
		return nil, fmt.Errorf("asset %s: %w", r.ID, err)
	}
	a.ImportSettings = settings.ImportSettings

	var metrics qualityMetricsRecord
	if err := decodeVersioned("quality_metrics", r.QualityMetrics, &metrics); err != nil {
		return nil, fmt.Errorf("asset %s: %w", r.ID, err)
	}
	a.QualityMetrics = metrics.QualityMetrics

	var err error
	if a.Tags, err = decodeStrings("tags", r.Tags); err != nil {
		return nil, fmt.Errorf("asset %s: %w", r.ID, err)
	}
	if a.CollectionIDs, err = decodeStrings("collection_ids", r.CollectionIDs); err != nil {
		return nil, fmt.Errorf("asset %s: %w", r.ID, err)
	}

	normalizeMaps(a)
	return a, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// secondPrecision drops sub-second precision and the monotonic reading
func secondPrecision(t time.Time) time.Time {
	return unixTime(t.Unix())
}

// NormalizeTags trims, NFC-normalizes and deduplicates tags, keeping the
// first occurrence. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = norm.NFC.String(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func normalizeMaps(a *Asset) {
	if a.Metadata.CustomProperties == nil {
		a.Metadata.CustomProperties = map[string]string{}
	}
	if a.ImportSettings.CustomSettings == nil {
		a.ImportSettings.CustomSettings = map[string]string{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.CollectionIDs == nil {
		a.CollectionIDs = []string{}
	}
}

// normalizeAsset brings a caller's asset to the exact form it is stored in,
// so the value written equals the value read back.
func normalizeAsset(a *Asset, now time.Time) {
	a.ID = strings.TrimSpace(a.ID)
	a.Name = norm.NFC.String(strings.TrimSpace(a.Name))
	a.Tags = NormalizeTags(a.Tags)
	a.CollectionIDs = NormalizeTags(a.CollectionIDs)
	normalizeMaps(a)

	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.AccessedAt.IsZero() {
		a.AccessedAt = now
	}
	a.UpdatedAt = now
	a.CreatedAt = secondPrecision(a.CreatedAt)
	a.UpdatedAt = secondPrecision(a.UpdatedAt)
	a.AccessedAt = secondPrecision(a.AccessedAt)
	if a.Version < 1 {
		a.Version = 1
	}
}

func validateAsset(a *Asset) error {
	if a.ID == "" {
		return fmt.Errorf("asset id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("asset %s: name is required", a.ID)
	}
	if !a.Type.valid() {
		return fmt.Errorf("asset %s: unknown asset type %q", a.ID, a.Type)
	}
	is := a.ImportSettings
	if !is.QualityLevel.valid() {
		return fmt.Errorf("asset %s: unknown quality level %q", a.ID, is.QualityLevel)
	}
	if !is.PlatformTarget.valid() {
		return fmt.Errorf("asset %s: unknown platform target %q", a.ID, is.PlatformTarget)
	}
	if !is.OptimizationLevel.valid() {
		return fmt.Errorf("asset %s: unknown optimization level %q", a.ID, is.OptimizationLevel)
	}
	if a.Metadata.FileSize < 0 || a.MemoryUsage < 0 || a.DiskUsage < 0 || a.UsageCount < 0 {
		return fmt.Errorf("asset %s: sizes and counters must not be negative", a.ID)
	}

	q := a.QualityMetrics
	scores := map[string]float64{
		"overall_score":          q.OverallScore,
		"performance_impact":     q.PerformanceImpact,
		"memory_efficiency":      q.MemoryEfficiency,
		"visual_quality":         q.VisualQuality,
		"optimization_potential": q.OptimizationPotential,
	}
	if q.AudioQuality != nil {
		scores["audio_quality"] = *q.AudioQuality
	}
	for name, v := range scores {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("asset %s: %s must be within [0, 1], got %v", a.ID, name, v)
		}
	}
	return nil
}
