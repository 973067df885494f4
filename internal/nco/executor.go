package nco

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/histpack/internal/metrics"
)

// ExecResult holds the outcome of a single tool invocation.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Runner executes tool command lines.
//
// Invocations run on a context detached from the caller's cancellation: a
// fatal error or an interrupt stops new work from being launched but never
// kills a tool that is already running. Timeout, when positive, is the only
// bound on a call.
type Runner struct {
	Timeout time.Duration
	Verbose bool // Tee tool stderr to os.Stderr as it runs.
	Metrics *metrics.Metrics
}

// Execute runs args[0] with args[1:]. stdin may be nil.
func (r *Runner) Execute(ctx context.Context, args []string, stdin io.Reader) ExecResult {
	if len(args) == 0 {
		return ExecResult{ExitCode: -1, Err: errors.New("empty command line")}
	}

	runCtx := context.WithoutCancel(ctx)
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Stdin = stdin

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	if r.Verbose {
		cmd.Stderr = io.MultiWriter(&stderrBuf, os.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	start := time.Now()
	err := cmd.Run()
	r.Metrics.ObserveTool(filepath.Base(args[0]), time.Since(start), err)

	res := ExecResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
		Err:    err,
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.Err = errors.Join(err, runCtx.Err())
	}
	return res
}

// CommandLine renders args for logs and dry-run output.
func CommandLine(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\") {
			quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
			continue
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
