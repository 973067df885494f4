package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backmassage/histpack/internal/catalog"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/metrics"
)

// Job tracks one merge unit through the scheduler. Registry methods return
// copies; the registry's own Job values are never handed out.
type Job struct {
	Seq      int // launch order, from 1
	Unit     *catalog.MergeUnit
	State    State
	Err      error
	Failures int
	Status   string
	Messages []string // one per recorded failure
	Bytes    int64    // output size once written
	Started  time.Time
	Finished time.Time
}

// Output is the job's key.
func (j Job) Output() string { return j.Unit.Output }

// Registry is the run state shared by all workers: the job table, the
// ordered error list and the set-once fatal flag. One mutex guards all of it.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string
	errs    []error
	fatal   error
	active  int
	peak    int
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRegistry returns an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{jobs: make(map[string]*Job), metrics: m, now: time.Now}
}

// Register creates the job for u in state Created. It refuses, returning
// false, once the fatal flag is set, so no job is created after a fatal
// error even when the caller checked the flag earlier.
func (r *Registry) Register(u *catalog.MergeUnit) (Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal != nil {
		return Job{}, false, nil
	}
	if _, ok := r.jobs[u.Output]; ok {
		return Job{}, false, fault.New("register", u.Output, fault.ErrDuplicateUnit)
	}
	j := &Job{Seq: len(r.order) + 1, Unit: u, State: Created, Started: r.now()}
	r.jobs[u.Output] = j
	r.order = append(r.order, u.Output)
	r.active++
	if r.active > r.peak {
		r.peak = r.active
	}
	r.metrics.JobStarted()
	return *j, true, nil
}

// Transition moves a job along a legal edge and sets its status message.
func (r *Registry) Transition(output string, to State, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[output]
	if !ok {
		return fault.Newf(fault.KindInternal, "transition", output, "unknown job")
	}
	if !CanTransition(j.State, to) {
		return fault.New("transition", output,
			fmt.Errorf("%w: %s -> %s", fault.ErrInvalidTransition, j.State, to))
	}
	r.enter(j, to)
	if status != "" {
		j.Status = status
	}
	return nil
}

// enter must be called with r.mu held.
func (r *Registry) enter(j *Job, to State) {
	j.State = to
	if to.Terminal() {
		r.active--
		j.Finished = r.now()
		r.metrics.JobFinished(string(to))
	}
}

// Fail records err against the job, moves it to Error and sets the fatal
// flag. A job already terminal keeps its state; the error is still recorded.
func (r *Registry) Fail(output string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[output]; ok {
		if j.Err == nil {
			j.Err = err
		}
		j.Status = err.Error()
		if !j.State.Terminal() {
			r.enter(j, Error)
		}
	}
	r.recordLocked(err)
}

// AddFailure counts one non-fatal failure, such as a verification mismatch.
func (r *Registry) AddFailure(output, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[output]; ok {
		j.Failures++
		j.Messages = append(j.Messages, msg)
	}
}

// SetBytes records the output size of a job.
func (r *Registry) SetBytes(output string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[output]; ok {
		j.Bytes = n
	}
}

// RecordError appends a run-level error, such as an interrupt, and sets
// the fatal flag. Every error kind is fatal-class.
func (r *Registry) RecordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(err)
}

func (r *Registry) recordLocked(err error) {
	if err == nil {
		return
	}
	r.errs = append(r.errs, err)
	if r.fatal == nil {
		r.fatal = err
	}
}

// Fatal reports whether a fatal error has been recorded.
func (r *Registry) Fatal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal != nil
}

// FatalError returns the first fatal error, or nil.
func (r *Registry) FatalError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// Errors returns recorded errors in order.
func (r *Registry) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Err joins every recorded error.
func (r *Registry) Err() error {
	return errors.Join(r.Errors()...)
}

// Get returns a copy of one job.
func (r *Registry) Get(output string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[output]
	if !ok {
		return Job{}, false
	}
	return copyJob(j), true
}

// Snapshot returns copies of every job in registration order.
func (r *Registry) Snapshot() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, copyJob(r.jobs[k]))
	}
	return out
}

// Len is the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Active is the number of jobs not yet terminal.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Peak is the highest Active value seen.
func (r *Registry) Peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

func copyJob(j *Job) Job {
	c := *j
	c.Messages = append([]string(nil), j.Messages...)
	return c
}
