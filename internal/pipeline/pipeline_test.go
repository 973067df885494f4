package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/histpack/internal/config"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/report"
	"github.com/backmassage/histpack/internal/term"
	"github.com/backmassage/histpack/internal/verify"
)

// --- Fakes ---

// fakeTools treats a file's content as its newline-separated time values.
type fakeTools struct {
	concatErr error
	corrupt   bool // Extract writes a slice that never matches
}

func (f *fakeTools) Concat(_ context.Context, inputs []string, output string, _ int) error {
	if f.concatErr != nil {
		return f.concatErr
	}
	var b bytes.Buffer
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		b.Write(data)
	}
	return os.WriteFile(output, b.Bytes(), 0o644)
}

func (f *fakeTools) Compress(ctx context.Context, input, output string, level int) error {
	return f.Concat(ctx, []string{input}, output, level)
}

func (f *fakeTools) Extract(_ context.Context, input, output, _ string, lo, hi int) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(strings.TrimSuffix(string(data), "\n"), "\n")
	slice := strings.Join(lines[lo:hi+1], "")
	if !strings.HasSuffix(slice, "\n") {
		slice += "\n"
	}
	if f.corrupt {
		slice = "-1\n"
	}
	return os.WriteFile(output, []byte(slice), 0o644)
}

func (f *fakeTools) Compare(_ context.Context, a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

func (f *fakeTools) Dump(_ context.Context, file, _ string) (string, error) {
	data, err := os.ReadFile(file)
	return string(data), err
}

func (f *fakeTools) DumpMetadata(context.Context, string, string) (string, error) {
	return "", nil
}

// --- Helpers ---

var fixedNow = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

const stamp = "20260301-123000"

type fixture struct {
	src, out string
	cfg      config.Config
	stdout   bytes.Buffer
	stderr   bytes.Buffer
}

// newFixture lays out a case with daily ice files for days 1..n of year 5.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	term.Configure(config.ColorNever)
	root := t.TempDir()
	f := &fixture{src: filepath.Join(root, "case"), out: filepath.Join(root, "out")}
	hist := filepath.Join(f.src, "ice", "hist")
	require.NoError(t, os.MkdirAll(hist, 0o755))
	for d := 1; d <= n; d++ {
		name := fmt.Sprintf("case.cice.h.0005-01-%02d.nc", d)
		body := fmt.Sprintf("%d\n", 1459+d)
		require.NoError(t, os.WriteFile(filepath.Join(hist, name), []byte(body), 0o644))
	}
	f.cfg = config.DefaultConfig()
	f.cfg.Source = f.src
	f.cfg.Output = f.out
	return f
}

func (f *fixture) run(tools Tools) Result {
	return Run(context.Background(), &f.cfg, Options{
		Tools:  tools,
		Stdout: &f.stdout,
		Stderr: &f.stderr,
		RunID:  "0f3c9a2e-run",
		Now:    func() time.Time { return fixedNow },
	})
}

func (f *fixture) merged() string {
	return filepath.Join(f.out, "ice", "hist", "case.cice.h.0005.nc")
}

// --- Run tests ---

func TestRun_YearlyMergeVerified(t *testing.T) {
	f := newFixture(t, 3)
	res := f.run(&fakeTools{})

	assert.Equal(t, fault.ExitOK, res.ExitCode, f.stderr.String())
	assert.Equal(t, stamp, res.Stamp)
	assert.Equal(t, report.StatusOK, res.Summary.Status)
	assert.Equal(t, 1, res.Stats.Units)
	assert.Equal(t, 3, res.Stats.Files)
	assert.Equal(t, 1, res.Stats.Done)
	assert.Zero(t, res.Stats.Failed)

	data, err := os.ReadFile(f.merged())
	require.NoError(t, err)
	assert.Equal(t, "1460\n1461\n1462\n", string(data))

	assert.FileExists(t, filepath.Join(f.out, "histpack."+stamp+".log"))
	assert.FileExists(t, filepath.Join(f.out, "histpack."+stamp+".report.yaml"))
	assert.FileExists(t, filepath.Join(f.out, "ice", "hist", "checksums."+stamp+".md5"))
	assert.NoFileExists(t, filepath.Join(f.out, "histpack."+stamp+".err"))
	assert.NoDirExists(t, filepath.Join(f.out, ".histpack-scratch-"+stamp))
	assert.Contains(t, f.stdout.String(), "Total space saved")
}

func TestRun_CompareFailureKeepsExitZero(t *testing.T) {
	f := newFixture(t, 4)
	res := f.run(&fakeTools{corrupt: true})

	assert.Equal(t, fault.ExitOK, res.ExitCode)
	assert.Equal(t, report.StatusFailures, res.Summary.Status)
	assert.Equal(t, 1, res.Stats.CompareFailed)
	for d := 1; d <= 4; d++ {
		assert.FileExists(t, filepath.Join(f.src, "ice", "hist", fmt.Sprintf("case.cice.h.0005-01-%02d.nc", d)))
	}
}

func TestRun_ToolFailureIsFatal(t *testing.T) {
	f := newFixture(t, 2)
	res := f.run(&fakeTools{concatErr: fault.New("ncrcat", "x.nc", fault.ErrToolFailed)})

	assert.Equal(t, fault.ExitTool, res.ExitCode)
	assert.Equal(t, report.StatusFatal, res.Summary.Status)
	assert.Equal(t, 1, res.Stats.Failed)
	assert.FileExists(t, filepath.Join(f.out, "histpack."+stamp+".err"))
	assert.Contains(t, f.stderr.String(), "[ERROR]")
}

func TestRun_MoveInputsAfterVerification(t *testing.T) {
	f := newFixture(t, 2)
	f.cfg.Move = true
	res := f.run(&fakeTools{})

	require.Equal(t, fault.ExitOK, res.ExitCode, f.stderr.String())
	moved := filepath.Join(f.src, config.MoveDirName, "ice", "hist", "case.cice.h.0005-01-01.nc")
	assert.FileExists(t, moved)
	assert.NoFileExists(t, filepath.Join(f.src, "ice", "hist", "case.cice.h.0005-01-01.nc"))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, 3)
	f.cfg.DryRun = true
	res := f.run(&fakeTools{})

	assert.Equal(t, fault.ExitOK, res.ExitCode, f.stderr.String())
	assert.Empty(t, res.LogFile)
	assert.Empty(t, res.Report)
	assert.NoDirExists(t, f.out)
	assert.Contains(t, f.stdout.String(), "DRY RUN")
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"compression level out of range", func(f *fixture) { f.cfg.Level = 10 }},
		{"missing source", func(f *fixture) { f.cfg.Source = filepath.Join(f.src, "nope") }},
		{"output inside source", func(f *fixture) { f.cfg.Output = filepath.Join(f.src, "merged") }},
		{"bad compare mode", func(f *fixture) { f.cfg.Compare = verify.Mode(9) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1)
			tt.setup(f)
			res := f.run(&fakeTools{})

			assert.Equal(t, fault.ExitArgument, res.ExitCode)
			assert.NoDirExists(t, f.out)
			assert.NotEmpty(t, f.stderr.String())
		})
	}
}

func TestRun_InterruptedBeforeCatalog(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Run(ctx, &f.cfg, Options{Tools: &fakeTools{}, Stdout: &f.stdout, Stderr: &f.stderr, Now: func() time.Time { return fixedNow }})

	assert.Equal(t, fault.ExitInterrupt, res.ExitCode)
	assert.NoFileExists(t, f.merged())
	assert.NotEmpty(t, res.RunID)
}

func TestRun_WritesMetricsTextfile(t *testing.T) {
	f := newFixture(t, 2)
	f.cfg.MetricsFile = filepath.Join(t.TempDir(), "histpack.prom")
	res := f.run(&fakeTools{})
	require.Equal(t, fault.ExitOK, res.ExitCode, f.stderr.String())

	data, err := os.ReadFile(f.cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "histpack_")
}

// --- Stats tests ---

func TestSpaceSaved(t *testing.T) {
	tests := []struct {
		name    string
		in, out int64
		want    int64
	}{
		{"smaller output", 1000, 400, 600},
		{"larger output", 400, 1000, -600},
		{"nothing written", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RunStats{TotalInputBytes: tt.in, TotalOutputBytes: tt.out}
			assert.Equal(t, tt.want, s.SpaceSaved())
		})
	}
}
