package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/histpack/internal/catalog"
	"github.com/backmassage/histpack/internal/check"
	"github.com/backmassage/histpack/internal/config"
	"github.com/backmassage/histpack/internal/display"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/jobs"
	"github.com/backmassage/histpack/internal/logging"
	"github.com/backmassage/histpack/internal/metrics"
	"github.com/backmassage/histpack/internal/ncmeta"
	"github.com/backmassage/histpack/internal/nco"
	"github.com/backmassage/histpack/internal/report"
	"github.com/backmassage/histpack/internal/scheduler"
	"github.com/backmassage/histpack/internal/verify"
)

// stampLayout names the run's log, error marker, report and ledgers.
const stampLayout = "20060102-150405"

// Tools is every external-tool operation a run needs. *nco.Toolset
// implements it.
type Tools interface {
	scheduler.Tools
	verify.Tools
	ncmeta.Dumper
}

// Options injects what a caller or test replaces.
type Options struct {
	// Tools defaults to the NCO tools named in the config, after a PATH check.
	Tools  Tools
	Stdout io.Writer
	Stderr io.Writer
	RunID  string // Default: a random UUID.
	Now    func() time.Time
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Stamp    string
	ExitCode int
	Stats    RunStats
	Summary  report.Summary
	LogFile  string
	Report   string
}

// Run is the top-level entry point. It validates paths, opens the run log,
// builds the catalog, schedules one job per unit, reports once and returns
// the process exit code with the run's statistics.
func Run(ctx context.Context, cfg *config.Config, opts Options) Result {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	started := opts.Now()
	res := Result{RunID: opts.RunID, Stamp: started.Format(stampLayout)}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}

	console, _ := logging.NewLogger(logging.Options{Verbose: cfg.Verbose, Stdout: opts.Stdout, Stderr: opts.Stderr})
	if err := cfg.Validate(); err != nil {
		console.Error("%v", err)
		res.ExitCode = fault.ExitCode(err)
		return res
	}
	source, output, err := cfg.ResolvePaths()
	if err != nil {
		console.Error("%v", err)
		res.ExitCode = fault.ExitCode(err)
		return res
	}

	logOpts := logging.Options{Verbose: cfg.Verbose, RunID: shortID(res.RunID), Stdout: opts.Stdout, Stderr: opts.Stderr}
	if !cfg.DryRun {
		logOpts.File = filepath.Join(output, "histpack."+res.Stamp+".log")
		logOpts.ErrorFile = filepath.Join(output, "histpack."+res.Stamp+".err")
	}
	log, err := logging.NewLogger(logOpts)
	if err != nil {
		console.Error("Cannot open run log: %v", err)
		res.ExitCode = fault.ExitMissingFile
		return res
	}
	defer log.Close()
	res.LogFile = log.FilePath()

	m := metrics.New(res.RunID)
	defer writeMetrics(cfg, m, log)

	tools := opts.Tools
	if tools == nil {
		if err := check.CheckDeps(cfg.Tools); err != nil {
			log.Error("%v", err)
			res.ExitCode = fault.ExitCode(err)
			return res
		}
		tools = nco.NewToolset(cfg.Tools, &nco.Runner{
			Timeout: cfg.ToolTimeout,
			Verbose: cfg.Verbose >= logging.LevelTrace,
			Metrics: m,
		})
	}

	logRunHeader(cfg, log, res, source, output)

	reg := jobs.NewRegistry(m)
	reporter := &report.Reporter{RunID: res.RunID, Path: reportPath(cfg, output, res.Stamp), Started: started, Log: log}
	res.Report = reporter.Path

	provider := ncmeta.NewProvider(tools)
	builder := catalog.NewBuilder(catalog.Options{
		Source:           source,
		Output:           output,
		Components:       cfg.Components,
		Mode:             cfg.Mode,
		KeepMonthly:      cfg.KeepMonthly,
		Workers:          cfg.Workers,
		ProgressInterval: cfg.ScanInterval(),
	}, catalog.NewClassifier(provider, cfg.CheckIceFiles), log, m)

	cat, err := builder.Build(ctx)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, fault.ErrInterrupted) {
			err = fault.New("catalog", source, fmt.Errorf("%w: %v", fault.ErrInterrupted, err))
		}
		log.Error("Catalog failed: %v", err)
		reg.RecordError(err)
		return finish(res, reporter, reg, 0, &catalog.Catalog{}, cfg, log, opts.Now().Sub(started))
	}
	log.Info("Catalog: %s file(s), %s, %d unit(s)",
		display.FormatCount(cat.Files), display.FormatBytes(cat.Bytes), len(cat.Units))
	log.Info("")

	scratch, cleanup, err := scratchDir(cfg, output, res.Stamp)
	if err != nil {
		log.Error("%v", err)
		reg.RecordError(err)
		return finish(res, reporter, reg, 0, cat, cfg, log, opts.Now().Sub(started))
	}
	defer cleanup()

	verifier := &verify.Verifier{
		Mode:       cfg.Compare,
		Tools:      tools,
		Times:      provider,
		Log:        log,
		Metrics:    m,
		ScratchDir: scratch,
	}
	sched := scheduler.New(scheduler.Options{
		Workers: cfg.Workers,
		Level:   cfg.Level,
		Move:    cfg.Move,
		Delete:  cfg.Delete,
		MoveDir: cfg.MoveDir,
		Source:  source,
		DryRun:  cfg.DryRun,
		Stamp:   res.Stamp,
	}, tools, verifier, reg, log, m)

	launched := sched.Run(ctx, cat.Units)
	return finish(res, reporter, reg, launched, cat, cfg, log, opts.Now().Sub(started))
}

// finish produces the report exactly once and logs the batch summary.
func finish(res Result, r *report.Reporter, reg *jobs.Registry, launched int, cat *catalog.Catalog, cfg *config.Config, log *logging.Logger, elapsed time.Duration) Result {
	log.Info("")
	summary, _ := r.Report(reg, launched)
	res.Summary = summary
	res.ExitCode = summary.ExitCode
	res.Stats = statsFrom(summary, cat, elapsed)
	logSummary(cfg, log, &res.Stats)
	return res
}

// reportPath is the YAML report destination. Dry runs write one only when
// asked to explicitly.
func reportPath(cfg *config.Config, output, stamp string) string {
	if cfg.ReportFile != "" {
		return cfg.ReportFile
	}
	if cfg.DryRun {
		return ""
	}
	return filepath.Join(output, "histpack."+stamp+".report.yaml")
}

// scratchDir creates the parent of the verifier's per-job directories on the
// output filesystem, where extracted slices fit next to the merged files.
func scratchDir(cfg *config.Config, output, stamp string) (string, func(), error) {
	if cfg.DryRun || cfg.Compare == verify.None {
		return "", func() {}, nil
	}
	dir := filepath.Join(output, ".histpack-scratch-"+stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fault.Newf(fault.KindTool, "scratch", dir, "%v", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func writeMetrics(cfg *config.Config, m *metrics.Metrics, log *logging.Logger) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warn("%v", err)
		return
	}
	log.Debug("Metrics written to %s", cfg.MetricsFile)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- Logging helpers ---

func logRunHeader(cfg *config.Config, log *logging.Logger, res Result, source, output string) {
	log.Info("=== histpack run %s ===", res.RunID)
	log.Info("In:  %s", source)
	log.Info("Out: %s", output)
	specs := make([]string, len(cfg.Components))
	for i, s := range cfg.Components {
		specs[i] = s.String()
	}
	log.Info("Components: %s", strings.Join(specs, ", "))

	mode := cfg.Mode.String()
	if cfg.KeepMonthly && cfg.Mode == catalog.Yearly {
		mode += " (monthly files kept)"
	}
	log.Info("Mode: %s, deflate level %d, %d worker(s), compare %s", mode, cfg.Level, cfg.Workers, cfg.Compare)
	switch {
	case cfg.Delete:
		log.Info("Inputs: deleted after verification")
	case cfg.Move:
		log.Info("Inputs: moved to %s after verification", cfg.MoveDir)
	}
	if cfg.ToolTimeout > 0 {
		log.Info("Tool timeout: %s", cfg.ToolTimeout)
	}
	if cfg.ConfigFile != "" {
		log.Debug("Config file: %s", cfg.ConfigFile)
	}
	if res.LogFile != "" {
		log.Debug("Run log: %s", res.LogFile)
	}
	for _, w := range cfg.Warnings() {
		log.Warn("%s", w)
	}
	if cfg.DryRun {
		log.Warn("DRY RUN")
	}
	log.Info("")
}

func logSummary(cfg *config.Config, log *logging.Logger, stats *RunStats) {
	log.Info("==============================")
	log.Info("Done: %d verified, %d compare failed, %d failed, %d not started",
		stats.Done, stats.CompareFailed, stats.Failed, stats.Units-stats.Launched)
	log.Info("Summary report:")
	log.Info("  Files scanned: %s", display.FormatCount(stats.Files))
	log.Info("  Elapsed: %s", display.FormatDuration(stats.Elapsed))

	if cfg.DryRun {
		log.Info("  Total space saved: n/a (dry run)")
		return
	}

	saved := stats.SpaceSaved()
	if saved >= 0 {
		log.Success("  Total space saved: %s (input %s -> output %s, ratio %s)",
			display.FormatSaved(stats.TotalInputBytes, stats.TotalOutputBytes),
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes),
			display.FormatRatio(stats.TotalInputBytes, stats.TotalOutputBytes))
	} else {
		log.Warn("  Total space saved: -%s (overall output is larger)",
			display.FormatBytes(-saved))
	}
}
