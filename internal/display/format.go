// Package display formats sizes, ratios and durations for the run summary
// and prints the startup banner.
package display

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes returns a human-readable IEC size (B, KiB, MiB, GiB, ...).
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatBytesWithSign prefixes with + or - for delta display (e.g. "- 1.2 GiB").
func FormatBytesWithSign(bytes int64) string {
	sign := ""
	if bytes > 0 {
		sign = "+ "
	} else if bytes < 0 {
		sign = "- "
		bytes = -bytes
	}
	return sign + FormatBytes(bytes)
}

// FormatRatio returns input/output as "2.35x", or "n/a" without output.
func FormatRatio(in, out int64) string {
	if out <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2fx", float64(in)/float64(out))
}

// FormatSaved describes the space saved by compression, e.g.
// "1.2 GiB (42.5%)". Growth is shown with a leading "+".
func FormatSaved(in, out int64) string {
	if in <= 0 {
		return "0 B"
	}
	delta := in - out
	pct := float64(delta) / float64(in) * 100
	if delta < 0 {
		return fmt.Sprintf("%s (%.1f%%)", FormatBytesWithSign(-delta), pct)
	}
	return fmt.Sprintf("%s (%.1f%%)", FormatBytes(delta), pct)
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string { return humanize.Comma(int64(n)) }

// FormatDuration rounds d to a readable precision for log lines.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
