package config

// This file binds the CLI flags and overlays them with the environment and
// an optional YAML config file. Precedence: flags > HISTPACK_* environment >
// config file > defaults.

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/backmassage/histpack/internal/catalog"
	"github.com/backmassage/histpack/internal/verify"
)

// envPrefix is the environment variable prefix; "HISTPACK_WORKERS" sets
// --workers.
const envPrefix = "HISTPACK"

// Keys shared by the flags, the environment and the config file.
const (
	keyComponent   = "component"
	keyMode        = "mode" // Config file and env only; flags use the mode switches.
	keyKeepMonthly = "keep-monthly"
	keyLevel       = "compression-level"
	keyWorkers     = "workers"
	keyCompare     = "compare"
	keyMove        = "move"
	keyDelete      = "delete"
	keyMoveDir     = "move-dir"
	keyDryRun      = "dryrun"
	keyVerbose     = "verbose"
	keyCheckIce    = "check-ice-files"
	keyConfig      = "config"
	keyToolTimeout = "tool-timeout"
	keyProgress    = "progress-interval"
	keyMetrics     = "metrics-file"
	keyReport      = "report-file"
	keyColor       = "color"
	keyCheck       = "check"
	keyNcks        = "tools.ncks"
	keyNcrcat      = "tools.ncrcat"
	keyNccmp       = "tools.nccmp"
)

// Flags is the command-line surface bound onto a FlagSet.
type Flags struct {
	fs      *pflag.FlagSet
	mode    catalog.Mode
	modeSet bool
}

// BindFlags registers every flag on fs. Call [Flags.Load] after fs has
// been parsed.
func BindFlags(fs *pflag.FlagSet) *Flags {
	d := DefaultConfig()
	f := &Flags{fs: fs, mode: d.Mode}

	fs.StringArrayP(keyComponent, "c", specStrings(d.Components), "component:model-name, repeatable (e.g. ice:cice, atm:cam, rest)")
	defineModeFlags(fs, f)
	fs.Bool(keyKeepMonthly, false, "Keep monthly files monthly (yearly mode only)")

	fs.IntP(keyLevel, "L", d.Level, fmt.Sprintf("Deflate level %d..%d", MinLevel, MaxLevel))
	fs.IntP(keyWorkers, "j", d.Workers, "Concurrent jobs")
	fs.String(keyCompare, d.Compare.String(), "Verification: none | spot | full")
	fs.Duration(keyToolTimeout, 0, "Bound on each tool call (0 = unbounded)")

	fs.Bool(keyMove, false, "Move verified inputs to --move-dir")
	fs.Bool(keyDelete, false, "Delete verified inputs (implies --move)")
	fs.String(keyMoveDir, "", "Destination for moved inputs (default <source>/"+MoveDirName+")")
	fs.BoolP(keyDryRun, "n", false, "Log intended actions only")

	fs.CountP(keyVerbose, "v", "Verbose output (repeatable)")
	fs.Bool(keyCheckIce, d.CheckIceFiles, "Prefer filename dates for ice history files")
	fs.Int(keyProgress, d.ProgressInterval, "Files between scan progress lines")
	fs.String(keyColor, string(d.ColorMode), "Colored logs: auto | always | never")

	fs.String(keyConfig, "", "Optional YAML config file")
	fs.String(keyMetrics, "", "Write Prometheus text-format metrics to this file at exit")
	fs.String(keyReport, "", "YAML run report (default <output>/histpack.<stamp>.report.yaml)")
	fs.Bool(keyCheck, false, "Check that the NCO tools are on PATH and exit")
	return f
}

// defineModeFlags registers --yearly, --monthly, --mergeall and
// --compressonly. They share one target, so the last one given wins.
func defineModeFlags(fs *pflag.FlagSet, f *Flags) {
	usage := map[catalog.Mode]string{
		catalog.Yearly:       "One output per stream and year (default)",
		catalog.Monthly:      "One output per stream and month",
		catalog.MergeAll:     "One output per stream",
		catalog.CompressOnly: "Compress each file on its own",
	}
	for _, m := range []catalog.Mode{catalog.Yearly, catalog.Monthly, catalog.MergeAll, catalog.CompressOnly} {
		flag := fs.VarPF(&modeValue{f: f, mode: m}, m.String(), "", usage[m])
		flag.NoOptDefVal = "true"
	}
}

// Load builds the final Config from defaults, the config file, the
// environment and the parsed flags, then validates it. args are the
// positional arguments left after flag parsing.
func (f *Flags) Load(args []string) (Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	applyDefaults(v, cfg)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(f.fs); err != nil {
		return cfg, usagef("bind flags: %v", err)
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, usagef("read config %s: %v", path, err)
		}
		cfg.ConfigFile = path
	}

	if err := f.apply(v, &cfg); err != nil {
		return cfg, err
	}

	cfg.CheckOnly = v.GetBool(keyCheck)
	if !cfg.CheckOnly {
		if len(args) != 2 {
			return cfg, usagef("need exactly source_case_dir and output_dir (got %d argument(s))", len(args))
		}
		cfg.Source = NormalizeDirArg(args[0])
		cfg.Output = NormalizeDirArg(args[1])
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// apply copies the resolved viper values into cfg, parsing the enum and
// list settings.
func (f *Flags) apply(v *viper.Viper, cfg *Config) error {
	specs, err := parseSpecs(v.GetStringSlice(keyComponent))
	if err != nil {
		return err
	}
	cfg.Components = specs

	if f.modeSet {
		cfg.Mode = f.mode
	} else {
		m, err := catalog.ParseMode(v.GetString(keyMode))
		if err != nil {
			return err
		}
		cfg.Mode = m
	}

	cmp, err := verify.ParseMode(v.GetString(keyCompare))
	if err != nil {
		return err
	}
	cfg.Compare = cmp

	cfg.KeepMonthly = v.GetBool(keyKeepMonthly)
	cfg.Level = v.GetInt(keyLevel)
	cfg.Workers = v.GetInt(keyWorkers)
	cfg.ToolTimeout = v.GetDuration(keyToolTimeout)
	cfg.Move = v.GetBool(keyMove)
	cfg.Delete = v.GetBool(keyDelete)
	cfg.MoveDir = NormalizeDirArg(v.GetString(keyMoveDir))
	cfg.DryRun = v.GetBool(keyDryRun)
	cfg.Verbose = v.GetInt(keyVerbose)
	cfg.CheckIceFiles = v.GetBool(keyCheckIce)
	cfg.ProgressInterval = v.GetInt(keyProgress)
	cfg.ColorMode = ColorMode(strings.ToLower(v.GetString(keyColor)))
	cfg.MetricsFile = v.GetString(keyMetrics)
	cfg.ReportFile = v.GetString(keyReport)
	cfg.Tools.Ncks = v.GetString(keyNcks)
	cfg.Tools.Ncrcat = v.GetString(keyNcrcat)
	cfg.Tools.Nccmp = v.GetString(keyNccmp)
	return nil
}

func applyDefaults(v *viper.Viper, d Config) {
	v.SetDefault(keyComponent, specStrings(d.Components))
	v.SetDefault(keyMode, d.Mode.String())
	v.SetDefault(keyLevel, d.Level)
	v.SetDefault(keyWorkers, d.Workers)
	v.SetDefault(keyCompare, d.Compare.String())
	v.SetDefault(keyCheckIce, d.CheckIceFiles)
	v.SetDefault(keyProgress, d.ProgressInterval)
	v.SetDefault(keyColor, string(d.ColorMode))
	v.SetDefault(keyNcks, d.Tools.Ncks)
	v.SetDefault(keyNcrcat, d.Tools.Ncrcat)
	v.SetDefault(keyNccmp, d.Tools.Nccmp)
}

// parseSpecs accepts repeated values and comma- or space-separated lists,
// which is how a single environment variable carries several components.
func parseSpecs(raw []string) ([]catalog.Spec, error) {
	var specs []catalog.Spec
	for _, item := range raw {
		for _, s := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			spec, err := catalog.ParseSpec(s)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
	}
	return catalog.SortSpecs(specs), nil
}

func specStrings(specs []catalog.Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.String()
	}
	return out
}

// modeValue is a boolean switch that selects one merge mode.
type modeValue struct {
	f    *Flags
	mode catalog.Mode
}

func (m *modeValue) String() string {
	if m.f == nil {
		return "false"
	}
	return strconv.FormatBool(m.f.modeSet && m.f.mode == m.mode)
}

func (m *modeValue) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid value %q for --%s", s, m.mode)
	}
	if on {
		m.f.mode = m.mode
		m.f.modeSet = true
	}
	return nil
}

func (m *modeValue) Type() string { return "bool" }
