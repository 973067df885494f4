package catalog

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/backmassage/histpack/internal/calendar"
	"github.com/backmassage/histpack/internal/fault"
)

// Mode selects how files are grouped into merge units.
type Mode int

const (
	Yearly Mode = iota
	Monthly
	MergeAll
	CompressOnly
)

var modeNames = map[Mode]string{
	Yearly:       "yearly",
	Monthly:      "monthly",
	MergeAll:     "mergeall",
	CompressOnly: "compressonly",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode accepts the names printed by [Mode.String].
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown merge mode %q", fault.ErrUsage, s)
}

// StreamID identifies one history stream: the model that wrote it and the
// stream name, e.g. cice + h1.
type StreamID struct {
	Model  string
	Stream string
}

func (s StreamID) String() string {
	if s.Model == "" {
		return s.Stream
	}
	return s.Model + "." + s.Stream
}

// Granularity is the precision of a date key.
type Granularity int

const (
	GranularityNone Granularity = iota
	GranularityYear
	GranularityMonth
	GranularityDay
)

// DateKey is a year with optional month and day. Zero means absent.
type DateKey struct {
	Year  int
	Month int
	Day   int
}

// KeyOf returns the day-precision key of d.
func KeyOf(d calendar.Date) DateKey {
	return DateKey{Year: d.Year, Month: d.Month, Day: d.Day}
}

// Granularity reports the finest field present.
func (k DateKey) Granularity() Granularity {
	switch {
	case k.Day != 0:
		return GranularityDay
	case k.Month != 0:
		return GranularityMonth
	default:
		return GranularityYear
	}
}

// First is the earliest day the key covers.
func (k DateKey) First() calendar.Date {
	return calendar.Date{Year: k.Year, Month: max(k.Month, 1), Day: max(k.Day, 1)}
}

// Last is the latest day the key covers.
func (k DateKey) Last() calendar.Date {
	switch k.Granularity() {
	case GranularityYear:
		return calendar.Date{Year: k.Year, Month: 12, Day: 31}
	case GranularityMonth:
		return calendar.Date{Year: k.Year, Month: k.Month, Day: calendar.DaysInMonth(k.Month)}
	default:
		return calendar.Date{Year: k.Year, Month: k.Month, Day: k.Day}
	}
}

// ParseDateField decodes the date field of a history filename: YYYY,
// YYYY-MM, YYYY-MM-DD or YYYY-MM-DD-SSSSS (seconds are dropped).
func ParseDateField(s string) (DateKey, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 1 || len(parts) > 4 {
		return DateKey{}, fmt.Errorf("%w: date field %q", fault.ErrBadDate, s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return DateKey{}, fmt.Errorf("%w: date field %q", fault.ErrBadDate, s)
		}
		nums[i] = n
	}
	k := DateKey{Year: nums[0]}
	if len(nums) > 1 {
		k.Month = nums[1]
		if k.Month < 1 || k.Month > 12 {
			return DateKey{}, fmt.Errorf("%w: month in %q", fault.ErrBadDate, s)
		}
	}
	if len(nums) > 2 {
		k.Day = nums[2]
		if k.Day < 1 || k.Day > calendar.DaysInMonth(k.Month) {
			return DateKey{}, fmt.Errorf("%w: day in %q", fault.ErrBadDate, s)
		}
	}
	return k, nil
}

// BucketKind names the grouping a bucket was derived under.
type BucketKind int

const (
	BucketYear   BucketKind = iota // all members share a year
	BucketMonth                    // all members share a year and month
	BucketStream                   // every file of the stream
	BucketFile                     // exactly one file, labelled by its raw date
)

// Bucket is the grouping value of a unit key. Only the fields that matter
// for Kind are set, so Buckets compare with ==.
type Bucket struct {
	Kind  BucketKind
	Year  int
	Month int
	Raw   string
}

// Label renders the bucket for output filenames. Stream buckets have no
// intrinsic label; the unit's date span supplies it.
func (b Bucket) Label() string {
	switch b.Kind {
	case BucketYear:
		return calendar.FormatYear(b.Year)
	case BucketMonth:
		return fmt.Sprintf("%s-%02d", calendar.FormatYear(b.Year), b.Month)
	default:
		return b.Raw
	}
}

// UnitKey identifies one merge unit.
type UnitKey struct {
	Component Component
	Stream    StreamID
	Bucket    Bucket
}

func (k UnitKey) String() string {
	label := k.Bucket.Label()
	if k.Bucket.Kind == BucketStream {
		label = "*"
	}
	if k.Stream == (StreamID{}) {
		return string(k.Component) + "/" + label
	}
	return string(k.Component) + "/" + k.Stream.String() + "/" + label
}

// Compare orders keys by component scan order, stream, then bucket.
func (k UnitKey) Compare(o UnitKey) int {
	if c := cmp.Compare(k.Component.Rank(), o.Component.Rank()); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Stream.Model, o.Stream.Model); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Stream.Stream, o.Stream.Stream); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Bucket.Year, o.Bucket.Year); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Bucket.Month, o.Bucket.Month); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Bucket.Kind, o.Bucket.Kind); c != 0 {
		return c
	}
	return cmp.Compare(k.Bucket.Raw, o.Bucket.Raw)
}
