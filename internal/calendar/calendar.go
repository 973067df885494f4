// Package calendar converts model time offsets into dates on the fixed
// 365-day (no-leap) calendar used by the climate model components.
package calendar

import (
	"fmt"
	"math"
	"strings"

	"github.com/backmassage/histpack/internal/fault"
)

// DaysPerYear is the length of every no-leap year.
const DaysPerYear = 365

// Calendar names a calendar as written in a NetCDF "calendar" attribute.
type Calendar string

// NoLeap is the only supported calendar.
const NoLeap Calendar = "noleap"

// cumDays[m] is the number of days before month m+1 in a no-leap year.
var cumDays = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// Normalize maps the CF aliases of the no-leap calendar onto [NoLeap]. Any
// other name is returned lower-cased and unchanged.
func Normalize(name string) Calendar {
	s := strings.ToLower(strings.TrimSpace(name))
	switch s {
	case "noleap", "no_leap", "365_day", "365day":
		return NoLeap
	}
	return Calendar(s)
}

// Date is a day on the no-leap calendar. Month and Day are 1-based.
type Date struct {
	Year  int
	Month int
	Day   int
}

// Resolve turns a time offset in days since January 1st of year0 into a
// calendar date. The offset is rounded up to a whole day-of-run first, so an
// offset of 1.0 (end of the first day) and 0.5 both resolve to January 1st.
func Resolve(offset float64, year0 int, cal Calendar) (Date, error) {
	if Normalize(string(cal)) != NoLeap {
		return Date{}, fmt.Errorf("%w: %q", fault.ErrUnsupportedCalendar, cal)
	}
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return Date{}, fmt.Errorf("%w: time offset %v", fault.ErrBadDate, offset)
	}
	dayOfRun := int(math.Ceil(offset))
	return fromDayOfRun(dayOfRun, year0), nil
}

func fromDayOfRun(dayOfRun, year0 int) Date {
	n := dayOfRun - 1
	year := year0 + floorDiv(n, DaysPerYear)
	doy := floorMod(n, DaysPerYear) + 1

	month := 12
	for month > 1 && doy <= cumDays[month-1] {
		month--
	}
	return Date{Year: year, Month: month, Day: doy - cumDays[month-1]}
}

// DayOfRun is the inverse of [Resolve]: the whole day-of-run that resolves to
// d when counting from January 1st of year0.
func DayOfRun(d Date, year0 int) int {
	return (d.Year-year0)*DaysPerYear + d.DayOfYear()
}

// DayOfYear returns the 1-based ordinal of d within its year.
func (d Date) DayOfYear() int {
	return cumDays[d.Month-1] + d.Day
}

// Valid reports whether d names a real no-leap day.
func (d Date) Valid() bool {
	return d.Month >= 1 && d.Month <= 12 && d.Day >= 1 && d.Day <= DaysInMonth(d.Month)
}

// DaysInMonth returns the month length; February always has 28 days.
func DaysInMonth(month int) int {
	if month == 12 {
		return DaysPerYear - cumDays[11]
	}
	return cumDays[month] - cumDays[month-1]
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// String formats d as YYYY-MM-DD with [FormatYear] padding.
func (d Date) String() string {
	return fmt.Sprintf("%s-%02d-%02d", FormatYear(d.Year), d.Month, d.Day)
}

// Compact formats d as YYYYMMDD with [FormatYear] padding.
func (d Date) Compact() string {
	return fmt.Sprintf("%s%02d%02d", FormatYear(d.Year), d.Month, d.Day)
}

// FormatYear zero-pads year to 4 digits, widening to 5 or 6 digits for
// multi-millennial runs.
func FormatYear(year int) string {
	switch {
	case year < 10000:
		return fmt.Sprintf("%04d", year)
	case year < 100000:
		return fmt.Sprintf("%05d", year)
	default:
		return fmt.Sprintf("%06d", year)
	}
}

// FromDateInt decodes the yyyymmdd integer stored in the "date" variable of
// atmosphere, land and river history files.
func FromDateInt(v int) (Date, error) {
	if v < 0 {
		return Date{}, fmt.Errorf("%w: date %d", fault.ErrBadDate, v)
	}
	d := Date{Year: v / 10000, Month: v / 100 % 100, Day: v % 100}
	if !d.Valid() {
		return Date{}, fmt.Errorf("%w: date %d", fault.ErrBadDate, v)
	}
	return d, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
