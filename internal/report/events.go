package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/asset-vault/internal/store"
)

// EventType represents the type of audit event
type EventType string

const (
	EventPut      EventType = "put"
	EventRemove   EventType = "remove"
	EventPrune    EventType = "prune"
	EventOptimize EventType = "optimize"
	EventBackup   EventType = "backup"
	EventRestore  EventType = "restore"
	EventHealth   EventType = "health"
	EventError    EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel resolves a level name, defaulting to info
func ParseLevel(s string) EventLevel {
	if _, ok := levelPriority[EventLevel(s)]; ok {
		return EventLevel(s)
	}
	return LevelInfo
}

// Event is one line of the audit log
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	AssetID   string            `json:"asset_id,omitempty"`
	Path      string            `json:"path,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	// Several commands may run within the same second
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogPut logs an asset upsert
func (l *EventLogger) LogPut(asset *store.Asset, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:   level,
		Event:   EventPut,
		AssetID: asset.ID,
		Path:    asset.FilePath,
		Bytes:   asset.Metadata.FileSize,
		Error:   errMsg,
		Extra: map[string]string{
			"type":    string(asset.Type),
			"version": fmt.Sprintf("%d", asset.Version),
		},
	})
}

// LogRemove logs an explicit asset removal
func (l *EventLogger) LogRemove(assetID string) error {
	return l.Log(&Event{
		Level:   LevelInfo,
		Event:   EventRemove,
		AssetID: assetID,
	})
}

// LogOptimize logs one prune event per removed asset, one warning per
// failure and a summary event.
func (l *EventLogger) LogOptimize(r *store.OptimizationReport) error {
	for _, id := range r.RemovedAssets {
		if err := l.Log(&Event{
			Level:   LevelDebug,
			Event:   EventPrune,
			AssetID: id,
			Reason:  "unused",
		}); err != nil {
			return err
		}
	}
	for id, msg := range r.FailedAssets {
		if err := l.Log(&Event{
			Level:   LevelWarning,
			Event:   EventPrune,
			AssetID: id,
			Error:   msg,
		}); err != nil {
			return err
		}
	}

	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventOptimize,
		Bytes:    r.BytesReclaimed,
		Duration: r.Duration.Milliseconds(),
		Extra: map[string]string{
			"removed":       fmt.Sprintf("%d", len(r.RemovedAssets)),
			"failed":        fmt.Sprintf("%d", len(r.FailedAssets)),
			"events_pruned": fmt.Sprintf("%d", r.EventsPruned),
			"memory_saved":  fmt.Sprintf("%d", r.MemorySaved),
		},
	})
}

// LogBackup logs a backup or restore
func (l *EventLogger) LogBackup(event EventType, path string, bytes int64, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    event,
		Path:     path,
		Bytes:    bytes,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogHealth logs a health check outcome
func (l *EventLogger) LogHealth(r *store.HealthReport) error {
	level := LevelInfo
	if !r.Healthy() {
		level = LevelWarning
	}

	return l.Log(&Event{
		Level: level,
		Event: EventHealth,
		Bytes: r.DatabaseSize,
		Extra: map[string]string{
			"integrity":              r.IntegrityMessage,
			"foreign_key_violations": fmt.Sprintf("%d", len(r.ForeignKeyViolations)),
			"orphaned_assets":        fmt.Sprintf("%d", len(r.OrphanedAssets)),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, assetID string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		AssetID: assetID,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
