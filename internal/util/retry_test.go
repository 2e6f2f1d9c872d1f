package util

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
)

var errLocked = errors.New("database is locked (5) (SQLITE_BUSY)")

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EBUSY", syscall.EBUSY, true},
		{"EIO", syscall.EIO, true},
		{"EPERM", syscall.EPERM, false},
		{"sqlite busy", errLocked, true},
		{"locked table", errors.New("database table is locked: assets"), true},
		{"wrapped lock", fmt.Errorf("backup checkpoint: %w", errors.New("database is locked")), true},
		{"pool wait timeout", errors.New("timed out after 5s waiting for a free connection"), true},
		{"unique constraint", errors.New("UNIQUE constraint failed: assets.id"), false},
		{"foreign key", errors.New("FOREIGN KEY constraint failed"), false},
		{"copy timed out", &os.PathError{Op: "write", Path: "/backups/vault.db", Err: syscall.ETIMEDOUT}, true},
		{"missing backup", &os.PathError{Op: "open", Path: "/backups/vault.db", Err: syscall.ENOENT}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	errMissing := &os.PathError{Op: "open", Path: "/assets/stone.png", Err: syscall.ENOENT}

	tests := []struct {
		name         string
		failures     int // calls that fail before the first success
		failWith     error
		wantAttempts int
		wantErr      bool
	}{
		{"first try", 0, nil, 1, false},
		{"lock clears", 2, errLocked, 3, false},
		{"lock never clears", 10, errLocked, 3, true},
		{"missing file is not retried", 10, errMissing, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			got, err := RetryWithBackoff(fastRetry(3), func() (int64, error) {
				attempts++
				if attempts <= tt.failures {
					return 0, tt.failWith
				}
				return 4096, nil
			}, "index asset")

			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if tt.wantErr {
				if !errors.Is(err, tt.failWith) {
					t.Errorf("err = %v, want it to wrap %v", err, tt.failWith)
				}
				return
			}
			if err != nil || got != 4096 {
				t.Errorf("got (%d, %v), want (4096, nil)", got, err)
			}
		})
	}
}

func TestRetryWaitIsCapped(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 5, InitialWait: 20 * time.Millisecond, MaxWait: 25 * time.Millisecond}

	start := time.Now()
	attempts := 0
	err := Retry(cfg, func() error {
		attempts++
		return errLocked
	}, "backup checkpoint")
	elapsed := time.Since(start)

	if err == nil || attempts != 5 {
		t.Fatalf("got attempts=%d err=%v, want 5 attempts and an error", attempts, err)
	}
	// Capped waits add up to 95ms; uncapped doubling would take 300ms
	if elapsed < 95*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Errorf("elapsed %v, want about 95ms", elapsed)
	}
}

func TestRetryNilConfigUsesDefaults(t *testing.T) {
	attempts := 0
	if err := Retry(nil, func() error { attempts++; return nil }, "noop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if cfg := DefaultRetryConfig(); cfg.MaxAttempts != 3 || cfg.MaxWait != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestCopyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/data/vault.db", []byte("sqlite bytes"), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := CopyFile(fs, "/data/vault.db", "/backups/nested/vault.db", nil)
	if err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	if n != int64(len("sqlite bytes")) {
		t.Errorf("Expected %d bytes copied, got: %d", len("sqlite bytes"), n)
	}

	got, err := afero.ReadFile(fs, "/backups/nested/vault.db")
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(got) != "sqlite bytes" {
		t.Errorf("Copy content mismatch: %q", got)
	}

	if exists, _ := afero.Exists(fs, "/backups/nested/vault.db.partial"); exists {
		t.Error("Temporary file left behind after copy")
	}
}

func TestCopyFile_MissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := &RetryConfig{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

	if _, err := CopyFile(fs, "/nope.db", "/out.db", cfg); err == nil {
		t.Fatal("Expected error for missing source")
	}
	if exists, _ := afero.Exists(fs, "/out.db"); exists {
		t.Error("Destination should not exist after failed copy")
	}
}
