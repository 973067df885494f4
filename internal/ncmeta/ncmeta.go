// Package ncmeta reads the date metadata of history files through ncks.
// Parsing of ncks output is exported separately from the tool call so it can
// be tested without NCO installed.
package ncmeta

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/backmassage/histpack/internal/calendar"
	"github.com/backmassage/histpack/internal/fault"
)

// Dumper runs the metadata tool. *nco.Toolset implements it.
type Dumper interface {
	Dump(ctx context.Context, file, variable string) (string, error)
	DumpMetadata(ctx context.Context, file, variable string) (string, error)
}

// Provider answers variable and attribute queries for one file at a time.
type Provider struct {
	dumper Dumper
}

// NewProvider wraps d.
func NewProvider(d Dumper) *Provider {
	return &Provider{dumper: d}
}

// Values returns the values of variable in file, in record order.
func (p *Provider) Values(ctx context.Context, file, variable string) ([]float64, error) {
	out, err := p.dumper.Dump(ctx, file, variable)
	if err != nil {
		return nil, err
	}
	vals, err := ParseValues(out)
	if err != nil {
		return nil, fault.New("read "+variable, file, err)
	}
	return vals, nil
}

// Attributes returns every attribute of variable in file.
func (p *Provider) Attributes(ctx context.Context, file, variable string) (map[string]string, error) {
	out, err := p.dumper.DumpMetadata(ctx, file, variable)
	if err != nil {
		return nil, err
	}
	return ParseAttributes(out, variable), nil
}

// Attribute returns one attribute, failing with fault.ErrMissingMetadata
// when it is absent.
func (p *Provider) Attribute(ctx context.Context, file, variable, name string) (string, error) {
	attrs, err := p.Attributes(ctx, file, variable)
	if err != nil {
		return "", err
	}
	v, ok := attrs[name]
	if !ok {
		return "", fault.New("read "+variable+":"+name, file,
			fmt.Errorf("%w: %s:%s", fault.ErrMissingMetadata, variable, name))
	}
	return v, nil
}

// TimeAxis is the continuous time coordinate of an ocean or ice file.
type TimeAxis struct {
	Offsets  []float64
	Year0    int
	Calendar calendar.Calendar
}

// Dates resolves every offset of the axis.
func (a TimeAxis) Dates() ([]calendar.Date, error) {
	dates := make([]calendar.Date, 0, len(a.Offsets))
	for _, off := range a.Offsets {
		d, err := calendar.Resolve(off, a.Year0, a.Calendar)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// ReadTimeAxis reads time values together with time:units and time:calendar.
func (p *Provider) ReadTimeAxis(ctx context.Context, file string) (TimeAxis, error) {
	attrs, err := p.Attributes(ctx, file, "time")
	if err != nil {
		return TimeAxis{}, err
	}
	units, ok := attrs["units"]
	if !ok {
		return TimeAxis{}, fault.New("read time:units", file, fault.ErrMissingMetadata)
	}
	cal, ok := attrs["calendar"]
	if !ok {
		return TimeAxis{}, fault.New("read time:calendar", file, fault.ErrMissingMetadata)
	}
	year0, err := ParseTimeUnits(units)
	if err != nil {
		return TimeAxis{}, fault.New("read time:units", file, err)
	}
	if calendar.Normalize(cal) != calendar.NoLeap {
		return TimeAxis{}, fault.New("read time:calendar", file,
			fmt.Errorf("%w: %q", fault.ErrUnsupportedCalendar, cal))
	}
	offsets, err := p.Values(ctx, file, "time")
	if err != nil {
		return TimeAxis{}, err
	}
	return TimeAxis{Offsets: offsets, Year0: year0, Calendar: calendar.NoLeap}, nil
}

// ReadDates reads the discrete yyyymmdd "date" variable of atmosphere, land
// and river files.
func (p *Provider) ReadDates(ctx context.Context, file string) ([]calendar.Date, error) {
	vals, err := p.Values(ctx, file, "date")
	if err != nil {
		return nil, err
	}
	dates := make([]calendar.Date, 0, len(vals))
	for _, v := range vals {
		d, err := calendar.FromDateInt(int(v))
		if err != nil || float64(int(v)) != v {
			return nil, fault.New("read date", file, fmt.Errorf("%w: date %v", fault.ErrBadDate, v))
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// reUnits matches "days since Y-01-01" with an optional time of day.
var reUnits = regexp.MustCompile(`^days since (-?\d{1,6})-0?1-0?1(?:[ T]\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?)?(?: ?(?:Z|UTC|[+-]\d{1,2}(?::?\d{2})?))?$`)

// ParseTimeUnits returns the origin year of a "days since Y-01-01" units
// string. Origins other than January 1st, or units other than days, fail
// with fault.ErrUnsupportedTimeUnits.
func ParseTimeUnits(units string) (int, error) {
	m := reUnits.FindStringSubmatch(strings.TrimSpace(units))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", fault.ErrUnsupportedTimeUnits, units)
	}
	return strconv.Atoi(m[1])
}

// ParseValues parses whitespace-separated numeric output of ncks -H -s.
func ParseValues(out string) ([]float64, error) {
	fields := strings.Fields(out)
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q", fault.ErrBadDate, f)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// reAttr matches one attribute line of `ncks --trd -m` output, e.g.
//
//	time attribute 1: units, size = 30 NC_CHAR, value = days since 0001-01-01 00:00:00
var reAttr = regexp.MustCompile(`^\s*(\S+) attribute \d+: ([^,]+), size = \d+ \S+, value = (.*)$`)

// ParseAttributes extracts the attributes of variable from ncks metadata
// output. Lines for other variables are ignored.
func ParseAttributes(out, variable string) map[string]string {
	attrs := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := reAttr.FindStringSubmatch(sc.Text())
		if m == nil || m[1] != variable {
			continue
		}
		attrs[strings.TrimSpace(m[2])] = strings.TrimSpace(m[3])
	}
	return attrs
}
