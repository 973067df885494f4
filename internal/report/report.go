// Package report produces the single end-of-run summary from the registry,
// logs it and optionally writes it as YAML.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/jobs"
)

// Status values of a Summary.
const (
	StatusOK       = "ok"       // every job done
	StatusFailures = "failures" // some jobs failed verification
	StatusFatal    = "fatal"    // a fatal error was recorded
)

// Logger is the logging surface the reporter needs.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// JobEntry is one job as written to the report file.
type JobEntry struct {
	Output   string   `yaml:"output"`
	State    string   `yaml:"state"`
	Inputs   int      `yaml:"inputs"`
	InBytes  int64    `yaml:"input_bytes"`
	OutBytes int64    `yaml:"output_bytes"`
	Failures int      `yaml:"failures,omitempty"`
	Messages []string `yaml:"messages,omitempty"`
	Error    string   `yaml:"error,omitempty"`
}

// Summary is the aggregate outcome of a run.
type Summary struct {
	RunID       string         `yaml:"run_id"`
	Status      string         `yaml:"status"`
	ExitCode    int            `yaml:"exit_code"`
	FatalError  string         `yaml:"fatal_error,omitempty"`
	Launched    int            `yaml:"launched"`
	Tracked     int            `yaml:"tracked"`
	States      map[string]int `yaml:"states"`
	InputBytes  int64          `yaml:"input_bytes"`
	OutputBytes int64          `yaml:"output_bytes"`
	Errors      []string       `yaml:"errors,omitempty"`
	Failing     []JobEntry     `yaml:"failing,omitempty"`
	Jobs        []JobEntry     `yaml:"jobs"`
	Started     time.Time      `yaml:"started"`
	Finished    time.Time      `yaml:"finished"`
}

// Failed is the number of jobs with at least one recorded failure.
func (s Summary) Failed() int { return len(s.Failing) }

// Reporter builds the summary exactly once.
type Reporter struct {
	RunID   string
	Path    string // YAML destination; empty disables the file
	Started time.Time
	Log     Logger

	once sync.Once
}

// Report reads reg after the scheduler has drained. The first call builds,
// logs and writes the summary and returns it with true; later calls return
// a zero Summary and false without side effects.
//
// On a fatal run the launched/tracked reconciliation is skipped. Otherwise
// a mismatch is recorded on reg as an internal error and the summary turns
// fatal.
func (r *Reporter) Report(reg *jobs.Registry, launched int) (Summary, bool) {
	var (
		s  Summary
		ok bool
	)
	r.once.Do(func() {
		s = r.build(reg, launched)
		r.log(s)
		r.write(s)
		ok = true
	})
	return s, ok
}

func (r *Reporter) build(reg *jobs.Registry, launched int) Summary {
	snap := reg.Snapshot()
	s := Summary{
		RunID:    r.RunID,
		Launched: launched,
		Tracked:  len(snap),
		States:   make(map[string]int),
		Started:  r.Started,
		Finished: time.Now(),
	}

	if !reg.Fatal() && s.Tracked != launched {
		reg.RecordError(fault.New("report", "",
			fmt.Errorf("%w: %d tracked, %d launched", fault.ErrJobCountMismatch, s.Tracked, launched)))
	}

	for _, j := range snap {
		e := entry(j)
		s.Jobs = append(s.Jobs, e)
		s.States[e.State]++
		s.InputBytes += e.InBytes
		s.OutputBytes += e.OutBytes
		if j.Failures > 0 {
			s.Failing = append(s.Failing, e)
		}
	}
	for _, err := range reg.Errors() {
		s.Errors = append(s.Errors, err.Error())
	}

	switch fatal := reg.FatalError(); {
	case fatal != nil:
		s.Status = StatusFatal
		s.FatalError = fatal.Error()
		s.ExitCode = fault.ExitCode(fatal)
	case len(s.Failing) > 0:
		s.Status = StatusFailures
	default:
		s.Status = StatusOK
	}
	return s
}

func entry(j jobs.Job) JobEntry {
	e := JobEntry{
		Output:   j.Output(),
		State:    string(j.State),
		Inputs:   len(j.Unit.Members),
		InBytes:  j.Unit.InputBytes(),
		OutBytes: j.Bytes,
		Failures: j.Failures,
		Messages: j.Messages,
	}
	if j.Err != nil {
		e.Error = j.Err.Error()
	}
	return e
}

func (r *Reporter) log(s Summary) {
	if r.Log == nil {
		return
	}
	states := make([]string, 0, len(s.States))
	for st := range s.States {
		states = append(states, st)
	}
	sort.Strings(states)
	for _, st := range states {
		r.Log.Info("  %-15s %d", st+":", s.States[st])
	}

	if s.Status == StatusFatal {
		r.Log.Error("Run status: fatal: %s", s.FatalError)
		return
	}
	for _, f := range s.Failing {
		r.Log.Warn("Failed: %s (%d failure(s))", filepath.Base(f.Output), f.Failures)
		for _, m := range f.Messages {
			r.Log.Warn("  %s", m)
		}
	}
	if s.Status == StatusOK {
		r.Log.Success("Run status: ok (%d job(s))", s.Tracked)
	} else {
		r.Log.Warn("Run status: %d of %d job(s) failed verification", s.Failed(), s.Tracked)
	}
}

func (r *Reporter) write(s Summary) {
	if r.Path == "" {
		return
	}
	if err := WriteFile(r.Path, s); err != nil && r.Log != nil {
		r.Log.Warn("Cannot write report: %v", err)
	}
}

// WriteFile writes s as YAML to path.
func WriteFile(path string, s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
