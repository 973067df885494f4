// Package check provides system diagnostics (--check mode) and pre-run
// dependency validation (CheckDeps) for the NCO tools histpack drives.
package check

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/nco"
)

// Sentinel errors returned by CheckDeps when a required tool is missing.
// Each wraps fault.ErrToolFailed so the run exits with the tool code.
var (
	ErrNcksNotFound   = fmt.Errorf("%w: ncks not found on PATH", fault.ErrToolFailed)
	ErrNcrcatNotFound = fmt.Errorf("%w: ncrcat not found on PATH", fault.ErrToolFailed)
	ErrNccmpNotFound  = fmt.Errorf("%w: nccmp not found on PATH", fault.ErrToolFailed)
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

type tool struct {
	name    string
	path    string
	missing error
}

func tools(p nco.Paths) []tool {
	return []tool{
		{"ncks", p.Ncks, ErrNcksNotFound},
		{"ncrcat", p.Ncrcat, ErrNcrcatNotFound},
		{"nccmp", p.Nccmp, ErrNccmpNotFound},
	}
}

// RunCheck runs the --check flow: reports where each tool resolves and its
// version line. It reports every tool before returning and is true only when
// all of them were found.
func RunCheck(p nco.Paths, log Logger) bool {
	log.Info("=== System Check ===")
	ok := true
	for _, t := range tools(p) {
		resolved, err := exec.LookPath(t.path)
		if err != nil {
			log.Error("%s not found (%s)", t.name, t.path)
			ok = false
			continue
		}
		if v := version(resolved); v != "" {
			log.Success("%s: %s (%s)", t.name, v, resolved)
		} else {
			log.Warn("%s found at %s but --version printed nothing", t.name, resolved)
		}
	}
	return ok
}

// CheckDeps is the pre-run validation: every tool must resolve through PATH
// (or its configured absolute path). It returns the first missing tool's
// sentinel, joined with any further ones.
func CheckDeps(p nco.Paths) error {
	var errs []error
	for _, t := range tools(p) {
		if _, err := exec.LookPath(t.path); err != nil {
			errs = append(errs, t.missing)
		}
	}
	return errors.Join(errs...)
}

// version returns the first non-empty line a tool prints for --version.
// NCO writes it to stderr, so both streams are read.
func version(path string) string {
	out, _ := exec.Command(path, "--version").CombinedOutput()
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
