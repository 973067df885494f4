// Package scheduler runs one job per merge unit under a fixed worker budget.
//
// A single dispatch loop walks the catalog in order. Each launch first
// takes a slot from a weighted semaphore, so at most Workers jobs are ever
// outside a terminal state. Once the run's fatal flag is set no further job
// is created, but jobs already launched run to completion.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/backmassage/histpack/internal/catalog"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/jobs"
	"github.com/backmassage/histpack/internal/metrics"
	"github.com/backmassage/histpack/internal/verify"
)

// Tools produces outputs. *nco.Toolset implements it.
type Tools interface {
	Concat(ctx context.Context, inputs []string, output string, level int) error
	Compress(ctx context.Context, input, output string, level int) error
}

// Verifier checks an output against its inputs. *verify.Verifier
// implements it.
type Verifier interface {
	Verify(ctx context.Context, output, component string, inputs []string) (verify.Report, error)
}

// Logger is the logging surface the scheduler needs.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// Options controls job execution.
type Options struct {
	Workers int
	Level   int // deflate level passed to the tools
	// Move relocates inputs under MoveDir after a verified job; Delete
	// removes them instead.
	Move    bool
	Delete  bool
	MoveDir string
	Source  string // root that input paths are made relative to when moved
	DryRun  bool
	Stamp   string // suffix of the per-directory digest ledgers
}

// Scheduler dispatches jobs. A Scheduler runs once.
type Scheduler struct {
	opts     Options
	tools    Tools
	verifier Verifier
	reg      *jobs.Registry
	log      Logger
	metrics  *metrics.Metrics
	ledger   *Ledger

	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	interrupt sync.Once
}

// New returns a scheduler recording into reg. m may be nil.
func New(opts Options, tools Tools, v Verifier, reg *jobs.Registry, log Logger, m *metrics.Metrics) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scheduler{
		opts:     opts,
		tools:    tools,
		verifier: v,
		reg:      reg,
		log:      log,
		metrics:  m,
		ledger:   NewLedger(opts.Stamp),
		sem:      semaphore.NewWeighted(int64(opts.Workers)),
	}
}

// Run launches a job for each unit in order and waits for every launched
// job to reach a terminal state. It returns the number of jobs launched.
// Cancelling ctx records an interrupt, which stops further launches; tool
// calls already running are not killed.
func (s *Scheduler) Run(ctx context.Context, units []*catalog.MergeUnit) int {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.recordInterrupt(ctx)
		case <-done:
		}
	}()

	launched := 0
	for _, u := range units {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.recordInterrupt(ctx)
			break
		}
		if ctx.Err() != nil {
			s.recordInterrupt(ctx)
		}
		if s.reg.Fatal() {
			s.sem.Release(1)
			break
		}
		job, ok, err := s.reg.Register(u)
		if err != nil {
			s.log.Error("%v", err)
			s.reg.RecordError(err)
		}
		if !ok {
			s.sem.Release(1)
			break
		}
		launched++
		s.log.Debug("Launching job %d: %s", job.Seq, u.Output)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.runJob(ctx, job)
		}()
	}
	s.wg.Wait()
	return launched
}

func (s *Scheduler) recordInterrupt(ctx context.Context) {
	s.interrupt.Do(func() {
		err := fault.New("run", "", fmt.Errorf("%w: %v", fault.ErrInterrupted, context.Cause(ctx)))
		s.log.Error("Interrupted: no new jobs will be launched; waiting for running jobs")
		s.reg.RecordError(err)
	})
}
