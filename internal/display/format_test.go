package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/backmassage/histpack/internal/config"
	"github.com/backmassage/histpack/internal/term"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"small bytes", 512, "512 B"},
		{"exactly 1 KiB", 1024, "1.0 KiB"},
		{"1.5 KiB", 1536, "1.5 KiB"},
		{"1 MiB", 1024 * 1024, "1.0 MiB"},
		{"1 GiB", 1024 * 1024 * 1024, "1.0 GiB"},
		{"monthly ice file 700 MiB", 734003200, "700 MiB"},
		{"4.7 GiB", 5046586572, "4.7 GiB"},
		{"negative", -2048, "-2.0 KiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormatBytesWithSign(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"positive", 1024 * 1024, "+ 1.0 MiB"},
		{"negative", -1024 * 1024, "- 1.0 MiB"},
		{"zero", 0, "0 B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBytesWithSign(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatBytesWithSign(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormatRatioAndSaved(t *testing.T) {
	tests := []struct {
		name      string
		in, out   int64
		wantRatio string
		wantSaved string
	}{
		{"halved", 2048, 1024, "2.00x", "1.0 KiB (50.0%)"},
		{"no output", 2048, 0, "n/a", "2.0 KiB (100.0%)"},
		{"grew", 1024, 2048, "0.50x", "+ 1.0 KiB (-100.0%)"},
		{"no input", 0, 0, "n/a", "0 B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantRatio, FormatRatio(tt.in, tt.out))
			assert.Equal(t, tt.wantSaved, FormatSaved(tt.in, tt.out))
		})
	}
}

func TestFormatCountAndDuration(t *testing.T) {
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond+400*time.Microsecond))
	assert.Equal(t, "12.3s", FormatDuration(12340*time.Millisecond))
	assert.Equal(t, "1h2m3s", FormatDuration(time.Hour+2*time.Minute+3*time.Second+400*time.Millisecond))
}

func TestPrintBanner_Plain(t *testing.T) {
	term.Configure(config.ColorNever)
	var b bytes.Buffer
	PrintBanner(&b)
	assert.False(t, strings.Contains(b.String(), "\x1b["))
	assert.Contains(t, b.String(), "|_|")
}
