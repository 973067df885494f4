// Package fault defines the error taxonomy shared by every stage of a run:
// error kinds, the sentinel errors that carry them, and the mapping from a
// kind to the process exit code.
//
// Every kind is fatal-class. Verification mismatches are not errors at all;
// they are counted on the job that produced them.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for exit-code and containment purposes.
type Kind int

const (
	KindUnknown     Kind = iota
	KindArgument         // Bad flags, config values, or positional args.
	KindMissingFile      // Source path or expected file not found.
	KindCalendar         // Unsupported calendar, time units, or unparsable date.
	KindMultiDate        // One file's frames span several buckets.
	KindTool             // External tool invocation failed.
	KindInternal         // Invariant violation; indicates a logic defect.
	KindInterrupt        // SIGINT/SIGTERM received.
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindArgument:    "argument",
	KindMissingFile: "missing-file",
	KindCalendar:    "calendar",
	KindMultiDate:   "multi-date",
	KindTool:        "tool",
	KindInternal:    "internal",
	KindInterrupt:   "interrupt",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Exit codes, one per kind. Zero is reserved for full success.
const (
	ExitOK          = 0
	ExitArgument    = 1
	ExitMissingFile = 2
	ExitCalendar    = 3
	ExitMultiDate   = 4
	ExitTool        = 5
	ExitInternal    = 6
	ExitInterrupt   = 7
)

// ExitCode returns the process exit code for k. Unknown errors map to the
// internal code so they never look like success.
func (k Kind) ExitCode() int {
	switch k {
	case KindArgument:
		return ExitArgument
	case KindMissingFile:
		return ExitMissingFile
	case KindCalendar:
		return ExitCalendar
	case KindMultiDate:
		return ExitMultiDate
	case KindTool:
		return ExitTool
	case KindInterrupt:
		return ExitInterrupt
	default:
		return ExitInternal
	}
}

// Sentinel errors. Wrap them with [New] or fmt.Errorf("%w") to add context;
// [KindOf] recovers the kind through any wrapping.
var (
	ErrUsage                = errors.New("invalid arguments")
	ErrMissingFile          = errors.New("file not found")
	ErrUnsupportedCalendar  = errors.New("unsupported calendar")
	ErrUnsupportedTimeUnits = errors.New("unsupported time units")
	ErrBadDate              = errors.New("malformed date")
	ErrMissingMetadata      = errors.New("missing variable or attribute")
	ErrMultipleYears        = errors.New("file spans multiple years")
	ErrMultipleMonths       = errors.New("file spans multiple months")
	ErrToolFailed           = errors.New("external tool failed")
	ErrDuplicateUnit        = errors.New("duplicate merge unit key")
	ErrEmptyUnit            = errors.New("merge unit has no members")
	ErrInvalidTransition    = errors.New("invalid job state transition")
	ErrJobCountMismatch     = errors.New("job count mismatch")
	ErrInterrupted          = errors.New("interrupted")
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrUsage, KindArgument},
	{ErrMissingFile, KindMissingFile},
	{ErrUnsupportedCalendar, KindCalendar},
	{ErrUnsupportedTimeUnits, KindCalendar},
	{ErrBadDate, KindCalendar},
	{ErrMissingMetadata, KindCalendar},
	{ErrMultipleYears, KindMultiDate},
	{ErrMultipleMonths, KindMultiDate},
	{ErrToolFailed, KindTool},
	{ErrDuplicateUnit, KindInternal},
	{ErrEmptyUnit, KindInternal},
	{ErrInvalidTransition, KindInternal},
	{ErrJobCountMismatch, KindInternal},
	{ErrInterrupted, KindInterrupt},
}

// Error attaches a kind, the failing operation and the path it concerned to
// an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with op/path context. The kind is taken from the first
// sentinel found in err's chain.
func New(op, path string, err error) *Error {
	return &Error{Kind: KindOf(err), Op: op, Path: path, Err: err}
}

// Newf builds an Error of an explicit kind from a formatted message.
func Newf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err. An explicit *Error wins over sentinel matching.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != KindUnknown {
		return fe.Kind
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// ExitCode maps err to the process exit code; nil maps to [ExitOK].
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return KindOf(err).ExitCode()
}
