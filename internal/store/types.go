package store

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AssetType classifies an imported resource
type AssetType string

const (
	AssetMesh      AssetType = "Mesh"
	AssetTexture   AssetType = "Texture"
	AssetMaterial  AssetType = "Material"
	AssetAnimation AssetType = "Animation"
	AssetAudio     AssetType = "Audio"
	AssetScene     AssetType = "Scene"
	AssetPrefab    AssetType = "Prefab"
	AssetScript    AssetType = "Script"
	AssetShader    AssetType = "Shader"
	AssetFont      AssetType = "Font"
)

// AssetTypes lists every known asset type in display order
var AssetTypes = []AssetType{
	AssetMesh, AssetTexture, AssetMaterial, AssetAnimation, AssetAudio,
	AssetScene, AssetPrefab, AssetScript, AssetShader, AssetFont,
}

// ParseAssetType resolves a type name case-insensitively
func ParseAssetType(s string) (AssetType, error) {
	for _, t := range AssetTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", opErr("parse asset type", ErrValidationFailed, fmt.Errorf("unknown asset type %q", s))
}

func (t AssetType) valid() bool {
	for _, known := range AssetTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Dimensions holds pixel dimensions of images and textures
type Dimensions struct {
	Width  uint32 `json:"width" yaml:"width"`
	Height uint32 `json:"height" yaml:"height"`
}

// AssetMetadata holds the indexed facts about an asset's file
type AssetMetadata struct {
	FileSize         int64             `json:"file_size" yaml:"file_size"`
	Dimensions       *Dimensions       `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Duration         *float64          `json:"duration,omitempty" yaml:"duration,omitempty"`
	Vertices         *uint32           `json:"vertices,omitempty" yaml:"vertices,omitempty"`
	Triangles        *uint32           `json:"triangles,omitempty" yaml:"triangles,omitempty"`
	CompressionRatio *float64          `json:"compression_ratio,omitempty" yaml:"compression_ratio,omitempty"`
	CustomProperties map[string]string `json:"custom_properties" yaml:"custom_properties,omitempty"`
}

// QualityLevel is the import quality tier
type QualityLevel string

const (
	QualityLow    QualityLevel = "Low"
	QualityMedium QualityLevel = "Medium"
	QualityHigh   QualityLevel = "High"
	QualityUltra  QualityLevel = "Ultra"
)

// Empty means the importer did not record a value
func (q QualityLevel) valid() bool {
	return q == "" || slices.Contains([]QualityLevel{QualityLow, QualityMedium, QualityHigh, QualityUltra}, q)
}

// PlatformTarget is the platform an asset was imported for
type PlatformTarget string

const (
	PlatformDesktop PlatformTarget = "Desktop"
	PlatformMobile  PlatformTarget = "Mobile"
	PlatformWeb     PlatformTarget = "Web"
	PlatformConsole PlatformTarget = "Console"
)

func (p PlatformTarget) valid() bool {
	return p == "" || slices.Contains([]PlatformTarget{PlatformDesktop, PlatformMobile, PlatformWeb, PlatformConsole}, p)
}

// OptimizationLevel is the import optimization tier
type OptimizationLevel string

const (
	OptimizationNone       OptimizationLevel = "None"
	OptimizationBasic      OptimizationLevel = "Basic"
	OptimizationAggressive OptimizationLevel = "Aggressive"
	OptimizationMaximum    OptimizationLevel = "Maximum"
)

func (o OptimizationLevel) valid() bool {
	return o == "" || slices.Contains([]OptimizationLevel{OptimizationNone, OptimizationBasic, OptimizationAggressive, OptimizationMaximum}, o)
}

// ImportSettings records how the importer processed an asset
type ImportSettings struct {
	QualityLevel      QualityLevel      `json:"quality_level" yaml:"quality_level"`
	PlatformTarget    PlatformTarget    `json:"platform_target" yaml:"platform_target"`
	OptimizationLevel OptimizationLevel `json:"optimization_level" yaml:"optimization_level"`
	CustomSettings    map[string]string `json:"custom_settings" yaml:"custom_settings,omitempty"`
}

// QualityMetrics holds importer scores, each in [0, 1]
type QualityMetrics struct {
	OverallScore          float64  `json:"overall_score" yaml:"overall_score"`
	PerformanceImpact     float64  `json:"performance_impact" yaml:"performance_impact"`
	MemoryEfficiency      float64  `json:"memory_efficiency" yaml:"memory_efficiency"`
	VisualQuality         float64  `json:"visual_quality" yaml:"visual_quality"`
	AudioQuality          *float64 `json:"audio_quality,omitempty" yaml:"audio_quality,omitempty"`
	OptimizationPotential float64  `json:"optimization_potential" yaml:"optimization_potential"`
}

// Asset is the metadata record for one imported game resource
type Asset struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           AssetType      `json:"type" yaml:"type"`
	FilePath       string         `json:"file_path" yaml:"file_path"`
	Metadata       AssetMetadata  `json:"metadata" yaml:"metadata"`
	Tags           []string       `json:"tags" yaml:"tags"`
	CollectionIDs  []string       `json:"collection_ids" yaml:"collection_ids,omitempty"`
	ImportSettings ImportSettings `json:"import_settings" yaml:"import_settings"`
	QualityMetrics QualityMetrics `json:"quality_metrics" yaml:"quality_metrics"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"updated_at,omitempty"`
	AccessedAt     time.Time      `json:"accessed_at" yaml:"accessed_at,omitempty"`
	UsageCount     int64          `json:"usage_count" yaml:"usage_count,omitempty"`
	MemoryUsage    int64          `json:"memory_usage" yaml:"memory_usage,omitempty"`
	DiskUsage      int64          `json:"disk_usage" yaml:"disk_usage,omitempty"`
	Checksum       string         `json:"checksum" yaml:"checksum,omitempty"`
	Version        int64          `json:"version" yaml:"version,omitempty"`
}

// CollectionType classifies a collection. Custom types are rendered as
// "Custom(<name>)".
type CollectionType string

const (
	CollectionProject     CollectionType = "Project"
	CollectionLevel       CollectionType = "Level"
	CollectionCharacter   CollectionType = "Character"
	CollectionEnvironment CollectionType = "Environment"
	CollectionUI          CollectionType = "UI"
	CollectionAudio       CollectionType = "Audio"
)

// CustomCollectionType builds a user-named collection type
func CustomCollectionType(name string) CollectionType {
	return CollectionType("Custom(" + name + ")")
}

// ParseCollectionType accepts the built-in names (case-insensitive),
// "Custom(<name>)" and "custom:<name>".
func ParseCollectionType(s string) (CollectionType, error) {
	s = strings.TrimSpace(s)
	for _, t := range []CollectionType{CollectionProject, CollectionLevel, CollectionCharacter,
		CollectionEnvironment, CollectionUI, CollectionAudio} {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	if strings.HasPrefix(s, "Custom(") && strings.HasSuffix(s, ")") && len(s) > len("Custom()") {
		return CollectionType(s), nil
	}
	if name, ok := strings.CutPrefix(strings.ToLower(s), "custom:"); ok && name != "" {
		return CustomCollectionType(s[len("custom:"):]), nil
	}
	return "", opErr("parse collection type", ErrValidationFailed, fmt.Errorf("unknown collection type %q", s))
}

// Collection is a named group of assets
type Collection struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Type        CollectionType `json:"type" yaml:"type"`
	Tags        []string       `json:"tags" yaml:"tags"`
	AssetIDs    []string       `json:"asset_ids" yaml:"asset_ids"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// EventType is the kind of a usage event
type EventType string

const (
	EventLoad   EventType = "Load"
	EventUnload EventType = "Unload"
	EventModify EventType = "Modify"
	EventView   EventType = "View"
	EventExport EventType = "Export"
)

// ParseEventType resolves an event type name case-insensitively
func ParseEventType(s string) (EventType, error) {
	for _, t := range []EventType{EventLoad, EventUnload, EventModify, EventView, EventExport} {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", opErr("parse event type", ErrValidationFailed, fmt.Errorf("unknown event type %q", s))
}

// DependencyNode is one row of a leveled dependency tree
type DependencyNode struct {
	AssetID string `json:"asset_id" yaml:"asset_id" db:"asset_id"`
	Parent  string `json:"parent,omitempty" yaml:"parent,omitempty" db:"parent"`
	Level   int    `json:"level" yaml:"level" db:"level"`
	Path    string `json:"path" yaml:"path" db:"path"`
}

// DependencyGraph is the tree rooted at RootID
type DependencyGraph struct {
	RootID   string           `json:"root_asset_id" yaml:"root_asset_id"`
	Nodes    []DependencyNode `json:"nodes" yaml:"nodes"`
	MaxDepth int              `json:"max_depth" yaml:"max_depth"`
}

// SortBy selects search result ordering
type SortBy string

const (
	SortByName         SortBy = "name"
	SortByCreatedDate  SortBy = "created"
	SortByModifiedDate SortBy = "modified"
	SortBySize         SortBy = "size"
	SortByUsage        SortBy = "usage"
)

// SearchQuery filters assets. Zero-valued fields are ignored.
type SearchQuery struct {
	Name            string
	Type            AssetType
	Tags            []string
	PathContains    string
	MinFileSize     *int64
	MaxFileSize     *int64
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	SortBy          SortBy
	Limit           int
	DisableFullText bool
}

// PopularAsset is one entry of the usage leaderboard
type PopularAsset struct {
	AssetID     string `json:"asset_id" db:"asset_id"`
	Name        string `json:"name" db:"name"`
	AccessCount int64  `json:"access_count" db:"access_count"`
}

// UsageAnalytics summarizes the last 30 days of usage events
type UsageAnalytics struct {
	PopularAssets          []PopularAsset   `json:"popular_assets"`
	HourlyAccessPattern    [24]int64        `json:"hourly_access_pattern"`
	EventTypeDistribution  map[string]int64 `json:"event_type_distribution"`
	TotalEvents            int64            `json:"total_events"`
	CacheHitRate           float64          `json:"cache_hit_rate"`
	AverageSessionDuration float64          `json:"average_session_duration"`
	PeakConcurrentUsers    int              `json:"peak_concurrent_users"`
}

// SizedAsset pairs an asset ID with a byte count
type SizedAsset struct {
	AssetID string `json:"asset_id" db:"id"`
	Bytes   int64  `json:"bytes" db:"memory_usage"`
}

// MemoryUsageReport aggregates estimated memory footprint
type MemoryUsageReport struct {
	TotalMemory   int64               `json:"total_memory"`
	ByType        map[AssetType]int64 `json:"by_type"`
	LargestAssets []SizedAsset        `json:"largest_assets"`
	AssetCount    int64               `json:"asset_count"`
}

// QueryTiming is a recorded query and its duration
type QueryTiming struct {
	Query      string  `json:"query"`
	DurationMS float64 `json:"duration_ms"`
}

// PerformanceMetrics describes database size and query performance
type PerformanceMetrics struct {
	DatabaseSizeBytes  int64            `json:"database_size_bytes"`
	TableSizes         map[string]int64 `json:"table_sizes"`
	IndexCount         int              `json:"index_count"`
	AverageQueryTimeMS float64          `json:"average_query_time_ms"`
	QueryCount         int64            `json:"query_count"`
	CacheHitRatio      float64          `json:"cache_hit_ratio"`
	ConnectionPoolSize int              `json:"connection_pool_size"`
	ActiveConnections  int              `json:"active_connections"`
	ConnectionWaits    int64            `json:"connection_waits"`
	SlowestQueries     []QueryTiming    `json:"slowest_queries"`
	VacuumLastRun      *time.Time       `json:"vacuum_last_run,omitempty"`
	WALFileSize        int64            `json:"wal_file_size"`
}

// DatabaseStats summarizes table contents
type DatabaseStats struct {
	AssetCount            int64            `json:"asset_count"`
	CollectionCount       int64            `json:"collection_count"`
	DependencyCount       int64            `json:"dependency_count"`
	UsageEventCount       int64            `json:"usage_event_count"`
	TotalMemoryUsage      int64            `json:"total_memory_usage"`
	TotalDiskUsage        int64            `json:"total_disk_usage"`
	AssetTypeDistribution map[string]int64 `json:"asset_type_distribution"`
	DatabasePath          string           `json:"database_path"`
	DatabaseSize          int64            `json:"database_size"`
}

// OptimizationReport is the outcome of Optimize
type OptimizationReport struct {
	Duration          time.Duration     `json:"duration"`
	RemovedAssets     []string          `json:"removed_assets"`
	FailedAssets      map[string]string `json:"failed_assets,omitempty"`
	InitialAssetCount int64             `json:"initial_asset_count"`
	FinalAssetCount   int64             `json:"final_asset_count"`
	EventsPruned      int64             `json:"events_pruned"`
	BytesReclaimed    int64             `json:"bytes_reclaimed"`
	MemorySaved       int64             `json:"memory_saved"`
}

// HealthReport is the outcome of HealthCheck
type HealthReport struct {
	IntegrityOK          bool       `json:"integrity_ok"`
	IntegrityMessage     string     `json:"integrity_message"`
	ForeignKeyViolations []string   `json:"foreign_key_violations"`
	OrphanedAssets       []string   `json:"orphaned_assets"`
	DatabaseSize         int64      `json:"database_size"`
	TableCount           int        `json:"table_count"`
	IndexCount           int        `json:"index_count"`
	LastVacuum           *time.Time `json:"last_vacuum,omitempty"`
	Recommendations      []string   `json:"recommendations"`
}

// Healthy reports whether the check found nothing to fix
func (r *HealthReport) Healthy() bool {
	return r.IntegrityOK && len(r.ForeignKeyViolations) == 0 && len(r.OrphanedAssets) == 0
}
