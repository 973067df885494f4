package nco

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/backmassage/histpack/internal/fault"
)

// Pre-compiled stderr patterns used to give a failed invocation a more
// precise kind than a generic tool failure.
var (
	reMissingFile = regexp.MustCompile(
		`(?i)No such file or directory|unable to (open|locate) file|does not exist`)

	reMissingVariable = regexp.MustCompile(
		`(?i)variable .* (is not|not) (in|found in) (the )?input file|` +
			`unable to find variable|Unable to find attribute|no variables fit criteria`)
)

const stderrTailLines = 8

// MatchMissingFile reports whether stderr says an input could not be opened.
func MatchMissingFile(stderr string) bool {
	return reMissingFile.MatchString(stderr)
}

// MatchMissingVariable reports whether stderr says a variable or attribute
// was absent.
func MatchMissingVariable(stderr string) bool {
	return reMissingVariable.MatchString(stderr)
}

// toolError converts a failed ExecResult into a fault error. An absent
// variable or attribute is a metadata (classification) error, an unopenable
// input keeps the missing-file kind, and everything else is a tool failure.
func toolError(op, path string, args []string, res ExecResult) error {
	tool := filepath.Base(args[0])
	detail := tail(res.Stderr, stderrTailLines)
	cause := fmt.Errorf("%w: %s exited %d", fault.ErrToolFailed, tool, res.ExitCode)
	if res.Err != nil && res.ExitCode < 0 {
		cause = fmt.Errorf("%w: %s: %v", fault.ErrToolFailed, tool, res.Err)
	}
	if detail != "" {
		cause = fmt.Errorf("%w\n%s", cause, detail)
	}

	switch {
	case MatchMissingVariable(res.Stderr):
		return &fault.Error{Kind: fault.KindCalendar, Op: op, Path: path,
			Err: fmt.Errorf("%w: %w", fault.ErrMissingMetadata, cause)}
	case MatchMissingFile(res.Stderr):
		return &fault.Error{Kind: fault.KindMissingFile, Op: op, Path: path, Err: cause}
	}
	return &fault.Error{Kind: fault.KindTool, Op: op, Path: path, Err: cause}
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return ""
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
