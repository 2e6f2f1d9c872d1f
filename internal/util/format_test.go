package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "64 MiB", FormatBytes(64*1024*1024))
	assert.Equal(t, "-5 B", FormatBytes(-5))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "1,234,567", FormatCount(1234567))
}

func TestFormatAgo(t *testing.T) {
	assert.Equal(t, "never", FormatAgo(nil))
	zero := time.Time{}
	assert.Equal(t, "never", FormatAgo(&zero))

	past := time.Now().Add(-3 * time.Hour)
	assert.Contains(t, FormatAgo(&past), "ago")
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "0.50ms", FormatMillis(0.5))
	assert.Equal(t, "12.25ms", FormatMillis(12.25))
}
