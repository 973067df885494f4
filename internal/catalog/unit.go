package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/histpack/internal/calendar"
	"github.com/backmassage/histpack/internal/fault"
)

// MergeUnit is the set of inputs that becomes one output file.
type MergeUnit struct {
	Key      UnitKey
	Members  []*HistoryFile
	Output   string
	First    calendar.Date // earliest day across members
	Last     calendar.Date // latest day across members
	CopyOnly bool
}

// Inputs returns member paths in merge order.
func (u *MergeUnit) Inputs() []string {
	paths := make([]string, len(u.Members))
	for i, m := range u.Members {
		paths[i] = m.Path
	}
	return paths
}

// InputBytes sums member sizes.
func (u *MergeUnit) InputBytes() int64 {
	var n int64
	for _, m := range u.Members {
		n += m.Size
	}
	return n
}

// Label is the date part of the output filename.
func (u *MergeUnit) Label() string {
	if u.Key.Bucket.Kind == BucketStream {
		return u.First.Compact() + "-" + u.Last.Compact()
	}
	return u.Key.Bucket.Label()
}

func (u *MergeUnit) add(f *HistoryFile) {
	first, last := f.FirstDate(), f.LastDate()
	if len(u.Members) == 0 || first.Before(u.First) {
		u.First = first
	}
	if len(u.Members) == 0 || u.Last.Before(last) {
		u.Last = last
	}
	u.Members = append(u.Members, f)
}

// freeze orders members chronologically and fixes the output path.
func (u *MergeUnit) freeze(outputDir, caseName string) error {
	if len(u.Members) == 0 {
		return fault.New("catalog", u.Key.String(), fault.ErrEmptyUnit)
	}
	sort.SliceStable(u.Members, func(i, j int) bool {
		a, b := u.Members[i].FirstDate(), u.Members[j].FirstDate()
		if a != b {
			return a.Before(b)
		}
		return u.Members[i].Name < u.Members[j].Name
	})
	if caseName == "" {
		caseName = u.Members[0].Case
	}
	u.Output = OutputPath(outputDir, caseName, u)
	return nil
}

// OutputPath builds the destination of a unit:
//
//	history:   <output>/<component>/hist/<case>.<stream>.<label>.nc
//	copy-only: <output>/<component>/hist/<name>
//	restart:   <output>/rest/<restart-dir>/<name>
func OutputPath(outputDir, caseName string, u *MergeUnit) string {
	if u.CopyOnly {
		if u.Key.Component == Rest {
			return filepath.Join(outputDir, "rest", filepath.FromSlash(u.Key.Bucket.Raw))
		}
		return filepath.Join(outputDir, string(u.Key.Component), "hist", u.Key.Bucket.Raw)
	}
	name := fmt.Sprintf("%s.%s.%s.nc", caseName, u.Key.Stream, u.Label())
	return filepath.Join(outputDir, string(u.Key.Component), "hist", name)
}

// bucketFor reduces f to its bucket under mode. A file whose own frames
// fall into more than one bucket is malformed.
func bucketFor(f *HistoryFile, mode Mode, keepMonthly bool) (Bucket, error) {
	switch mode {
	case MergeAll:
		return Bucket{Kind: BucketStream}, nil
	case CompressOnly:
		return Bucket{Kind: BucketFile, Raw: f.Label}, nil
	}

	monthly := mode == Monthly && f.Key.Granularity() != GranularityYear
	if mode == Yearly && keepMonthly && f.Key.Granularity() == GranularityMonth {
		monthly = true
	}

	keys := f.frameKeys()
	b := Bucket{Kind: BucketYear, Year: keys[0].Year}
	if monthly {
		b = Bucket{Kind: BucketMonth, Year: keys[0].Year, Month: keys[0].Month}
	}
	for _, k := range keys[1:] {
		if k.Year != b.Year {
			return Bucket{}, fault.New("classify", f.Path,
				fmt.Errorf("%w: %s and %s", fault.ErrMultipleYears,
					calendar.FormatYear(b.Year), calendar.FormatYear(k.Year)))
		}
		if monthly && k.Month != b.Month {
			return Bucket{}, fault.New("classify", f.Path,
				fmt.Errorf("%w: %s-%02d and %s-%02d", fault.ErrMultipleMonths,
					calendar.FormatYear(b.Year), b.Month, calendar.FormatYear(k.Year), k.Month))
		}
	}
	return b, nil
}

// copyOnlyKey keys a verbatim copy by its path relative to the scan root.
func copyOnlyKey(comp Component, rel string) UnitKey {
	return UnitKey{Component: comp, Bucket: Bucket{Kind: BucketFile, Raw: filepath.ToSlash(rel)}}
}

// unitSet folds files into units, appending to existing units on key reuse.
type unitSet struct {
	mode        Mode
	keepMonthly bool
	units       map[UnitKey]*MergeUnit
}

func newUnitSet(mode Mode, keepMonthly bool) *unitSet {
	return &unitSet{mode: mode, keepMonthly: keepMonthly, units: make(map[UnitKey]*MergeUnit)}
}

func (s *unitSet) addHistory(f *HistoryFile) error {
	b, err := bucketFor(f, s.mode, s.keepMonthly)
	if err != nil {
		return err
	}
	key := UnitKey{Component: f.Component, Stream: f.Stream, Bucket: b}
	u, ok := s.units[key]
	if !ok {
		u = &MergeUnit{Key: key}
		s.units[key] = u
	} else if s.mode == CompressOnly {
		return fault.New("catalog", f.Path,
			fmt.Errorf("%w: %s already holds %s", fault.ErrDuplicateUnit, key, u.Members[0].Name))
	}
	u.add(f)
	return nil
}

func (s *unitSet) addCopy(f *HistoryFile, rel string) error {
	key := copyOnlyKey(f.Component, rel)
	if _, ok := s.units[key]; ok {
		return fault.New("catalog", f.Path, fault.ErrDuplicateUnit)
	}
	s.units[key] = &MergeUnit{Key: key, Members: []*HistoryFile{f}, CopyOnly: true}
	return nil
}

// sorted freezes every unit and returns them in key order.
func (s *unitSet) sorted(outputDir, caseName string) ([]*MergeUnit, error) {
	out := make([]*MergeUnit, 0, len(s.units))
	for _, u := range s.units {
		if err := u.freeze(outputDir, caseName); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out, nil
}

// describe renders a one-line summary used in debug logging.
func (u *MergeUnit) describe() string {
	names := make([]string, len(u.Members))
	for i, m := range u.Members {
		names[i] = m.Name
	}
	return fmt.Sprintf("%s <- %s", filepath.Base(u.Output), strings.Join(names, ", "))
}
