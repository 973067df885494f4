// Package config holds runtime configuration: defaults, CLI flag binding,
// the environment and config-file overlay, and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/histpack/internal/catalog"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/nco"
	"github.com/backmassage/histpack/internal/verify"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Compression level bounds accepted by the NCO tools.
const (
	MinLevel = 1
	MaxLevel = 9
)

// MoveDirName is the default destination for moved inputs, below the source.
// The leading dot keeps it out of later scans.
const MoveDirName = ".histpack-moved"

// Config holds all runtime settings. It is populated by [DefaultConfig],
// overlaid by [Flags.Load] and checked by [Config.Validate] before any package
// sees it.
type Config struct {
	// Paths (set from positional args).
	Source string
	Output string

	// Cataloging.
	Components       []catalog.Spec // Default: ice:cice.
	Mode             catalog.Mode   // Default: yearly.
	KeepMonthly      bool           // Yearly mode only.
	CheckIceFiles    bool           // Default: true. Prefer filename dates for ice.
	ProgressInterval int            // Default: 500 files between progress lines.

	// Compression and verification.
	Level       int           // Default: 1. Deflate level 1..9.
	Workers     int           // Default: 4. Concurrent jobs.
	Compare     verify.Mode   // Default: spot.
	ToolTimeout time.Duration // 0 = unbounded.
	Tools       nco.Paths

	// Input handling after verification.
	Move    bool
	Delete  bool   // Implies Move.
	MoveDir string // Default: <source>/.histpack-moved.
	DryRun  bool

	// Display, logging and run artifacts.
	Verbose     int       // Repeatable -v.
	ColorMode   ColorMode // Default: "auto".
	ConfigFile  string    // Optional YAML overlay.
	MetricsFile string    // Optional Prometheus textfile.
	ReportFile  string    // Default: <output>/histpack.<stamp>.report.yaml.
	CheckOnly   bool      // Run --check diagnostics and exit.
}

// DefaultConfig returns a Config with every default filled in. [Flags.Load]
// overlays config file, environment and flags on top of it.
func DefaultConfig() Config {
	return Config{
		Components:       []catalog.Spec{{Component: catalog.Ice, Model: "cice"}},
		Mode:             catalog.Yearly,
		CheckIceFiles:    true,
		ProgressInterval: 500,
		Level:            1,
		Workers:          4,
		Compare:          verify.Spot,
		Tools:            nco.DefaultPaths(),
		ColorMode:        ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks ranges and enum values and fills derived fields
// (Delete implies Move; MoveDir defaults below Source). Every error wraps
// [fault.ErrUsage]. When not in CheckOnly mode it also requires both
// positional paths.
func (c *Config) Validate() error {
	if c.Level < MinLevel || c.Level > MaxLevel {
		return usagef("compression level must be %d..%d (got %d)", MinLevel, MaxLevel, c.Level)
	}
	if c.Workers < 1 {
		return usagef("workers must be at least 1 (got %d)", c.Workers)
	}
	if c.ProgressInterval < 1 {
		return usagef("progress interval must be at least 1 (got %d)", c.ProgressInterval)
	}
	if c.ToolTimeout < 0 {
		return usagef("tool timeout must not be negative (got %s)", c.ToolTimeout)
	}
	if _, ok := compareModes[c.Compare]; !ok {
		return usagef("invalid compare mode (use 'none', 'spot' or 'full')")
	}
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return usagef("invalid color mode %q (use 'auto', 'always' or 'never')", c.ColorMode)
	}

	if c.Delete {
		c.Move = true
	}

	if c.CheckOnly {
		return nil
	}
	if c.Source == "" || c.Output == "" {
		return usagef("need exactly source_case_dir and output_dir")
	}
	if len(c.Components) == 0 {
		return usagef("at least one --component is required")
	}
	if c.MoveDir == "" {
		c.MoveDir = filepath.Join(c.Source, MoveDirName)
	}
	return nil
}

var compareModes = map[verify.Mode]bool{verify.None: true, verify.Spot: true, verify.Full: true}

// Warnings lists settings that are accepted but have no effect.
func (c *Config) Warnings() []string {
	var out []string
	if c.KeepMonthly && c.Mode != catalog.Yearly {
		out = append(out, fmt.Sprintf("--keep-monthly has no effect in %s mode", c.Mode))
	}
	return out
}

// ScanInterval is the number of classified files between progress lines.
// Each verbose level divides the configured interval by ten.
func (c *Config) ScanInterval() int {
	n := c.ProgressInterval
	for i := 0; i < c.Verbose; i++ {
		n /= 10
	}
	if n < 1 {
		return 1
	}
	return n
}

// ResolvePaths checks that Source exists and is a directory and that Output
// does not live inside it. It returns both as absolute, symlink-resolved
// paths. Output need not exist yet.
func (c *Config) ResolvePaths() (sourceAbs, outputAbs string, err error) {
	info, err := os.Stat(c.Source)
	if err != nil {
		return "", "", usagef("source directory not found: %s", c.Source)
	}
	if !info.IsDir() {
		return "", "", usagef("source is not a directory: %s", c.Source)
	}
	sourceAbs, err = absPath(c.Source)
	if err != nil {
		return "", "", usagef("cannot resolve source path %s: %v", c.Source, err)
	}
	outputAbs, err = absPath(c.Output)
	if err != nil {
		return "", "", usagef("cannot resolve output path %s: %v", c.Output, err)
	}
	if err := c.ValidatePaths(sourceAbs, outputAbs); err != nil {
		return "", "", err
	}
	return sourceAbs, outputAbs, nil
}

// ValidatePaths ensures the resolved output directory is not inside (or equal
// to) the resolved source directory, where a later scan would pick up merged
// output as input. Both arguments must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(sourceAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == sourceAbs || strings.HasPrefix(outputAbs+sep, sourceAbs+sep) {
		return usagef("output directory must not be inside source directory")
	}
	return nil
}

// absPath returns the absolute path with symlinks resolved. A path that does
// not exist yet is resolved through its nearest existing parent.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}
	p, err := absPath(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(p, filepath.Base(abs)), nil
}

func usagef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", fault.ErrUsage, fmt.Sprintf(format, args...))
}
