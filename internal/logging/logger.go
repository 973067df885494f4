// Package logging provides the leveled, optionally colored run logger.
//
// Console lines go to stdout (errors to stderr). When a run log is
// configured every line is also appended there, tagged with the run id, and
// error lines additionally create and fill the run's error marker file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/backmassage/histpack/internal/term"
)

// Verbosity levels.
const (
	LevelDebug = 1 // -v
	LevelTrace = 2 // -vv
)

// Options configure a Logger.
type Options struct {
	Verbose   int
	RunID     string
	File      string // Run log; empty disables the file sink.
	ErrorFile string // Error marker, created on the first Error line.
	Stdout    io.Writer
	Stderr    io.Writer
}

// Logger provides leveled, optionally colored logging with an optional file
// sink. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	verbose int
	runID   string
	stdout  io.Writer
	stderr  io.Writer

	file     *os.File
	filePath string
	errPath  string
	errFile  *os.File
	errCount int
}

// NewLogger opens the run log when opts.File is set. Call Close when done.
// Colors follow term's global switch; configure it first.
func NewLogger(opts Options) (*Logger, error) {
	l := &Logger{
		verbose: opts.Verbose,
		runID:   opts.RunID,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		errPath: opts.ErrorFile,
	}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}
	if l.stderr == nil {
		l.stderr = os.Stderr
	}

	if opts.File != "" {
		f, err := openAppend(opts.File)
		if err != nil {
			return nil, err
		}
		l.file = f
		l.filePath = opts.File
	}
	return l, nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// Close closes the run log and error marker if they were opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for _, f := range []**os.File{&l.file, &l.errFile} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil && first == nil {
			first = err
		}
		*f = nil
	}
	return first
}

// FilePath is the run log path, empty without a file sink.
func (l *Logger) FilePath() string { return l.filePath }

// ErrorCount is the number of Error lines written so far.
func (l *Logger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errCount
}

// Verbose is the configured verbosity level.
func (l *Logger) Verbose() int { return l.verbose }

func (l *Logger) line(level string, c *color.Color, text string) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.stdout
	if level == "ERROR" {
		out = l.stderr
	}
	_, _ = io.WriteString(out, ts+" "+c.Sprint("["+level+"]")+" "+text+"\n")

	plain := ts + " [" + level + "] " + text + "\n"
	if l.runID != "" {
		plain = ts + " " + l.runID + " [" + level + "] " + text + "\n"
	}
	if l.file != nil {
		_, _ = io.WriteString(l.file, plain)
	}
	if level == "ERROR" {
		l.errCount++
		l.markError(plain)
	}
}

// markError appends to the error marker, creating it on first use. Called
// with l.mu held.
func (l *Logger) markError(plain string) {
	if l.errPath == "" {
		return
	}
	if l.errFile == nil {
		f, err := openAppend(l.errPath)
		if err != nil {
			l.errPath = ""
			_, _ = fmt.Fprintf(l.stderr, "cannot create error marker: %v\n", err)
			return
		}
		l.errFile = f
	}
	_, _ = io.WriteString(l.errFile, plain)
}

// Info logs at INFO level (blue).
func (l *Logger) Info(format string, args ...interface{}) {
	l.line("INFO", term.Blue, fmt.Sprintf(format, args...))
}

// Success logs at SUCCESS level (green).
func (l *Logger) Success(format string, args ...interface{}) {
	l.line("SUCCESS", term.Green, fmt.Sprintf(format, args...))
}

// Warn logs at WARN level (yellow).
func (l *Logger) Warn(format string, args ...interface{}) {
	l.line("WARN", term.Yellow, fmt.Sprintf(format, args...))
}

// Error logs at ERROR level (red) to stderr, the run log and the error marker.
func (l *Logger) Error(format string, args ...interface{}) {
	l.line("ERROR", term.Red, fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level (cyan) from -v up.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.verbose < LevelDebug {
		return
	}
	l.line("DEBUG", term.Cyan, fmt.Sprintf(format, args...))
}

// Trace logs at TRACE level from -vv up.
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.verbose < LevelTrace {
		return
	}
	l.line("TRACE", term.Faint, fmt.Sprintf(format, args...))
}
