package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/backmassage/histpack/internal/calendar"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/ncmeta"
)

// ErrNotHistory is returned by Classify for files that do not follow the
// component's history naming rule. The builder copies such files verbatim.
var ErrNotHistory = errors.New("not a history file")

// HistoryFile is one classified input. It is never modified after Classify
// returns it.
type HistoryFile struct {
	Path      string
	Name      string
	Component Component
	Case      string   // filename prefix before the model name
	Stream    StreamID // zero for copy-only files
	Label     string   // raw date field from the filename
	Key       DateKey
	Dates     []calendar.Date // per-frame dates; nil on the filename path
	Frames    int
	FastPath  bool
	CopyOnly  bool
	Size      int64
}

// FirstDate is the earliest day covered by the file.
func (f *HistoryFile) FirstDate() calendar.Date {
	if len(f.Dates) > 0 {
		return f.Dates[0]
	}
	return f.Key.First()
}

// LastDate is the latest day covered by the file.
func (f *HistoryFile) LastDate() calendar.Date {
	if len(f.Dates) > 0 {
		last := f.Dates[0]
		for _, d := range f.Dates[1:] {
			if last.Before(d) {
				last = d
			}
		}
		return last
	}
	return f.Key.Last()
}

// frameKeys returns one key per frame, or the filename key on the fast path.
func (f *HistoryFile) frameKeys() []DateKey {
	if len(f.Dates) == 0 {
		return []DateKey{f.Key}
	}
	keys := make([]DateKey, len(f.Dates))
	for i, d := range f.Dates {
		keys[i] = KeyOf(d)
	}
	return keys
}

// MetadataReader reads the date metadata of a file. *ncmeta.Provider
// implements it.
type MetadataReader interface {
	ReadTimeAxis(ctx context.Context, file string) (ncmeta.TimeAxis, error)
	ReadDates(ctx context.Context, file string) ([]calendar.Date, error)
}

// Classifier turns file paths into HistoryFiles.
type Classifier struct {
	Meta MetadataReader
	// CheckIceFiles takes ice dates from the filename, skipping metadata.
	CheckIceFiles bool

	patterns sync.Map // Spec -> *regexp.Regexp
}

// NewClassifier returns a Classifier reading metadata through meta.
func NewClassifier(meta MetadataReader, checkIceFiles bool) *Classifier {
	return &Classifier{Meta: meta, CheckIceFiles: checkIceFiles}
}

func (c *Classifier) pattern(s Spec) *regexp.Regexp {
	if re, ok := c.patterns.Load(s); ok {
		return re.(*regexp.Regexp)
	}
	re, _ := c.patterns.LoadOrStore(s, namePattern(s))
	return re.(*regexp.Regexp)
}

// Classify derives stream id and dates for path under spec. Filenames that
// do not match the stream rule yield ErrNotHistory.
func (c *Classifier) Classify(ctx context.Context, path string, spec Spec) (*HistoryFile, error) {
	name := filepath.Base(path)
	if spec.Component == Rest {
		return nil, ErrNotHistory
	}
	m := c.pattern(spec).FindStringSubmatch(name)
	if m == nil {
		return nil, ErrNotHistory
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fault.New("classify", path, fmt.Errorf("%w: %v", fault.ErrMissingFile, err))
	}
	key, err := ParseDateField(m[3])
	if err != nil {
		return nil, fault.New("classify", path, err)
	}

	f := &HistoryFile{
		Path:      path,
		Name:      name,
		Component: spec.Component,
		Case:      m[1],
		Stream:    StreamID{Model: spec.Model, Stream: m[2]},
		Label:     m[3],
		Key:       key,
		Size:      info.Size(),
	}

	if key.Granularity() <= GranularityMonth || (spec.Component == Ice && c.CheckIceFiles) {
		f.FastPath = true
		f.Frames = 1
		return f, nil
	}

	dates, err := c.readDates(ctx, path, spec.Component)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fault.New("classify", path, fmt.Errorf("%w: no time records", fault.ErrMissingMetadata))
	}
	f.Dates = dates
	f.Frames = len(dates)
	f.Key = KeyOf(dates[0])
	return f, nil
}

func (c *Classifier) readDates(ctx context.Context, path string, comp Component) ([]calendar.Date, error) {
	if c.Meta == nil {
		return nil, fault.Newf(fault.KindInternal, "classify", path, "no metadata reader configured")
	}
	switch comp {
	case Atm, Lnd, Rof:
		return c.Meta.ReadDates(ctx, path)
	default:
		axis, err := c.Meta.ReadTimeAxis(ctx, path)
		if err != nil {
			return nil, err
		}
		dates, err := axis.Dates()
		if err != nil {
			return nil, fault.New("classify", path, err)
		}
		return dates, nil
	}
}
