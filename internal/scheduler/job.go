package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/backmassage/histpack/internal/catalog"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/jobs"
)

// runJob walks one job through compress, stamp, checksum, verify and the
// optional move. Every exit leaves the job in a terminal state.
func (s *Scheduler) runJob(ctx context.Context, job jobs.Job) {
	u := job.Unit
	out := u.Output
	comp := string(u.Key.Component)

	if !s.step(out, jobs.Compressing, "compressing") {
		return
	}
	if err := s.produce(ctx, u); err != nil {
		s.fail(out, err)
		return
	}
	if !s.step(out, jobs.Compressed, "compressed") {
		return
	}

	if !s.opts.DryRun {
		if err := s.finishOutput(u); err != nil {
			s.fail(out, err)
			return
		}
	}

	if !s.step(out, jobs.Verifying, "verifying") {
		return
	}
	if !u.CopyOnly && !s.opts.DryRun {
		rep, err := s.verifier.Verify(ctx, out, comp, u.Inputs())
		if err != nil {
			s.fail(out, err)
			return
		}
		if !rep.Passed() {
			for _, msg := range rep.Messages {
				s.reg.AddFailure(out, msg)
			}
			status := fmt.Sprintf("%d of %d sampled comparison(s) failed", rep.Failures, rep.Sampled)
			if s.step(out, jobs.CompareFailed, status) {
				s.log.Warn("%s: %s; inputs left in place", filepath.Base(out), status)
			}
			return
		}
	}
	if !s.step(out, jobs.Verified, "verified") {
		return
	}

	if s.opts.Move || s.opts.Delete {
		if !s.step(out, jobs.Moving, "moving inputs") {
			return
		}
		if err := s.relocate(u); err != nil {
			s.fail(out, err)
			return
		}
	}
	if s.step(out, jobs.Done, "done") {
		s.log.Success("%s (%d input(s))", filepath.Base(out), len(u.Members))
	}
}

// step transitions the job; an illegal edge fails the job.
func (s *Scheduler) step(out string, to jobs.State, status string) bool {
	if err := s.reg.Transition(out, to, status); err != nil {
		s.fail(out, err)
		return false
	}
	return true
}

func (s *Scheduler) fail(out string, err error) {
	s.log.Error("%s: %v", filepath.Base(out), err)
	s.reg.Fail(out, err)
}

// produce writes the unit's output: a verbatim copy, a single-file
// compression or a concatenation.
func (s *Scheduler) produce(ctx context.Context, u *catalog.MergeUnit) error {
	inputs := u.Inputs()
	if s.opts.DryRun {
		switch {
		case u.CopyOnly:
			s.log.Info("[dry-run] copy %s -> %s", inputs[0], u.Output)
		case len(inputs) == 1:
			s.log.Info("[dry-run] compress %s -> %s (level %d)", inputs[0], u.Output, s.opts.Level)
		default:
			s.log.Info("[dry-run] concat %d file(s) -> %s (level %d)", len(inputs), u.Output, s.opts.Level)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(u.Output), 0o755); err != nil {
		return fault.Newf(fault.KindTool, "mkdir", filepath.Dir(u.Output), "%v", err)
	}
	switch {
	case u.CopyOnly:
		return copyFile(inputs[0], u.Output)
	case len(inputs) == 1:
		return s.tools.Compress(ctx, inputs[0], u.Output, s.opts.Level)
	default:
		return s.tools.Concat(ctx, inputs, u.Output, s.opts.Level)
	}
}

// finishOutput stamps the output with the newest input mtime, records its
// size and appends its digest to the directory ledger.
func (s *Scheduler) finishOutput(u *catalog.MergeUnit) error {
	if err := stampMtime(u.Output, u.Inputs()); err != nil {
		return err
	}
	info, err := os.Stat(u.Output)
	if err != nil {
		return fault.New("stat", u.Output, fmt.Errorf("%w: %v", fault.ErrMissingFile, err))
	}
	s.reg.SetBytes(u.Output, info.Size())
	s.metrics.OutputWritten(info.Size())

	sum, err := s.ledger.Append(u.Output)
	if err != nil {
		return err
	}
	s.log.Debug("%s: %s, md5 %s", filepath.Base(u.Output), humanize.IBytes(uint64(info.Size())), sum)
	return nil
}

// relocate moves or deletes the inputs of a verified unit.
func (s *Scheduler) relocate(u *catalog.MergeUnit) error {
	for _, in := range u.Inputs() {
		if s.opts.Delete {
			if s.opts.DryRun {
				s.log.Info("[dry-run] delete %s", in)
				continue
			}
			if err := os.Remove(in); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fault.Newf(fault.KindTool, "delete", in, "%v", err)
			}
			continue
		}
		dest := s.moveTarget(in)
		if s.opts.DryRun {
			s.log.Info("[dry-run] move %s -> %s", in, dest)
			continue
		}
		if err := moveFile(in, dest); err != nil {
			return err
		}
	}
	return nil
}

// moveTarget keeps the input's path below Source when it has one.
func (s *Scheduler) moveTarget(in string) string {
	rel, err := filepath.Rel(s.opts.Source, in)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(in)
	}
	return filepath.Join(s.opts.MoveDir, rel)
}
