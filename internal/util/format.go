package util

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count using binary units (KiB, MiB, ...)
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// FormatCount renders an integer with thousands separators
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatAgo renders a timestamp relative to now ("3 days ago"), or "never"
func FormatAgo(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.Time(*t)
}

// FormatMillis renders a duration in milliseconds with two decimals
func FormatMillis(ms float64) string {
	return fmt.Sprintf("%.2fms", ms)
}
