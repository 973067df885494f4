package pipeline

import (
	"time"

	"github.com/backmassage/histpack/internal/catalog"
	"github.com/backmassage/histpack/internal/jobs"
	"github.com/backmassage/histpack/internal/report"
)

// RunStats tracks aggregate counters and byte totals across a run.
type RunStats struct {
	Units         int
	Files         int
	Launched      int
	Done          int
	CompareFailed int
	Failed        int
	// Byte totals cover jobs that wrote an output.
	TotalInputBytes  int64
	TotalOutputBytes int64
	Elapsed          time.Duration
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}

func statsFrom(s report.Summary, cat *catalog.Catalog, elapsed time.Duration) RunStats {
	st := RunStats{
		Units:         len(cat.Units),
		Files:         cat.Files,
		Launched:      s.Launched,
		Done:          s.States[string(jobs.Done)],
		CompareFailed: s.States[string(jobs.CompareFailed)],
		Failed:        s.States[string(jobs.Error)],
		Elapsed:       elapsed,
	}
	for _, j := range s.Jobs {
		if j.OutBytes > 0 {
			st.TotalInputBytes += j.InBytes
			st.TotalOutputBytes += j.OutBytes
		}
	}
	return st
}
