// Package verify compares a merged output against a sample of its inputs.
//
// For each sampled input the matching frame range is located in the
// output's time coordinate, extracted into a scratch file and diffed against
// the input. Differences are counted, never returned as errors; only tool
// failures abort a verification.
package verify

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/metrics"
)

// Mode selects how many inputs are compared.
type Mode int

const (
	None Mode = iota
	Spot
	Full
)

var modeNames = map[Mode]string{None: "none", Spot: "spot", Full: "full"}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode accepts none, spot or full in any case.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown compare mode %q (none|spot|full)", fault.ErrUsage, s)
}

// Tools is the external tool surface the verifier drives. *nco.Toolset
// implements it.
type Tools interface {
	Extract(ctx context.Context, input, output, dim string, lo, hi int) error
	Compare(ctx context.Context, a, b string) (bool, error)
}

// TimeReader reads a coordinate variable. *ncmeta.Provider implements it.
type TimeReader interface {
	Values(ctx context.Context, file, variable string) ([]float64, error)
}

// Logger is the logging surface the verifier needs.
type Logger interface {
	Warn(string, ...interface{})
	Debug(string, ...interface{})
}

// Report is the outcome of one verification.
type Report struct {
	Sampled  int      // inputs selected for comparison
	Failures int      // comparisons that differed or could not be located
	Messages []string // one per failure
}

// Passed reports whether every sampled comparison matched.
func (r Report) Passed() bool { return r.Failures == 0 }

// Verifier runs sampled comparisons.
type Verifier struct {
	Mode    Mode
	Tools   Tools
	Times   TimeReader
	Log     Logger
	Metrics *metrics.Metrics
	// ScratchDir is the parent of per-job scratch directories; empty means
	// the system temp dir.
	ScratchDir string
}

const timeVar = "time"

// Verify compares output against the sampled inputs. inputs must be in
// merge order.
func (v *Verifier) Verify(ctx context.Context, output, component string, inputs []string) (Report, error) {
	var rep Report
	if v.Mode == None || len(inputs) == 0 {
		return rep, nil
	}

	selected := Sample(len(inputs))
	if v.Mode == Full {
		selected = all(len(inputs))
	}
	rep.Sampled = len(selected)

	if len(inputs) == 1 {
		err := v.compare(ctx, &rep, inputs[0], output, component)
		return rep, err
	}

	outTimes, err := v.Times.Values(ctx, output, timeVar)
	if err != nil {
		return rep, err
	}

	scratch, err := os.MkdirTemp(v.ScratchDir, "histpack-verify-*")
	if err != nil {
		return rep, fault.Newf(fault.KindInternal, "verify", output, "scratch dir: %v", err)
	}
	defer os.RemoveAll(scratch)

	for _, i := range selected {
		in := inputs[i]
		inTimes, err := v.Times.Values(ctx, in, timeVar)
		if err != nil {
			return rep, err
		}
		lo, hi, ok := Locate(outTimes, inTimes)
		if !ok {
			v.fail(&rep, component, fmt.Sprintf("%s: frames not found in %s", filepath.Base(in), filepath.Base(output)))
			continue
		}
		slice := filepath.Join(scratch, fmt.Sprintf("slice-%04d.nc", i))
		if err := v.Tools.Extract(ctx, output, slice, timeVar, lo, hi); err != nil {
			return rep, err
		}
		if err := v.compare(ctx, &rep, in, slice, component); err != nil {
			return rep, err
		}
		_ = os.Remove(slice)
	}
	return rep, nil
}

func (v *Verifier) compare(ctx context.Context, rep *Report, input, against, component string) error {
	same, err := v.Tools.Compare(ctx, input, against)
	if err != nil {
		return err
	}
	if same {
		v.Log.Debug("%s: %s matches", component, filepath.Base(input))
		return nil
	}
	v.fail(rep, component, fmt.Sprintf("%s: differs from merged output", filepath.Base(input)))
	return nil
}

func (v *Verifier) fail(rep *Report, component, msg string) {
	rep.Failures++
	rep.Messages = append(rep.Messages, msg)
	v.Metrics.CompareFailed()
	v.Log.Warn("%s: compare failed: %s", component, msg)
}

// Sample picks the inputs compared in spot mode: the first, the last and
// max(1, n/10) evenly spaced interior indices. Inputs of three or fewer are
// all selected. The result is ascending and free of duplicates.
func Sample(n int) []int {
	if n <= 3 {
		return all(n)
	}
	k := max(1, n/10)
	picked := map[int]bool{0: true, n - 1: true}
	for j := 1; j <= k; j++ {
		picked[j*(n-1)/(k+1)] = true
	}
	out := make([]int, 0, len(picked))
	for i := range picked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func all(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Locate finds the record range of out that holds exactly the values of in,
// in order. It reports false when in is empty or not present.
func Locate(out, in []float64) (lo, hi int, ok bool) {
	if len(in) == 0 || len(in) > len(out) {
		return 0, 0, false
	}
	for start := 0; start+len(in) <= len(out); start++ {
		if !sameTime(out[start], in[0]) {
			continue
		}
		match := true
		for k := 1; k < len(in); k++ {
			if !sameTime(out[start+k], in[k]) {
				match = false
				break
			}
		}
		if match {
			return start, start + len(in) - 1, true
		}
	}
	return 0, 0, false
}

func sameTime(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(a))
}
