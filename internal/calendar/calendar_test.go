package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/histpack/internal/fault"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		offset float64
		year0  int
		want   Date
	}{
		{"first day", 1, 1, Date{1, 1, 1}},
		{"fractional rounds up", 0.5, 1, Date{1, 1, 1}},
		{"end of january", 31, 1, Date{1, 1, 31}},
		{"first of february", 32, 1, Date{1, 2, 1}},
		{"end of february", 59, 1, Date{1, 2, 28}},
		{"first of march", 60, 1, Date{1, 3, 1}},
		{"last day of year", 365, 1, Date{1, 12, 31}},
		{"next year", 366, 1, Date{2, 1, 1}},
		{"year 5 day 3", 4*365 + 3, 1, Date{5, 1, 3}},
		{"offset zero is end of previous year", 0, 10, Date{9, 12, 31}},
		{"nonzero year0", 45, 1850, Date{1850, 2, 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.offset, tt.year0, NoLeap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_UnsupportedCalendar(t *testing.T) {
	for _, cal := range []Calendar{"gregorian", "standard", "360_day", ""} {
		_, err := Resolve(10, 1, cal)
		require.ErrorIs(t, err, fault.ErrUnsupportedCalendar, "calendar %q", cal)
	}
}

func TestResolve_Aliases(t *testing.T) {
	for _, cal := range []Calendar{"noleap", "NOLEAP", "365_day", "no_leap"} {
		got, err := Resolve(32, 1, cal)
		require.NoError(t, err)
		assert.Equal(t, Date{1, 2, 1}, got)
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	for _, year0 := range []int{0, 1, 1850} {
		for year := year0; year < year0+3; year++ {
			for month := 1; month <= 12; month++ {
				for day := 1; day <= DaysInMonth(month); day++ {
					d := Date{year, month, day}
					got, err := Resolve(float64(DayOfRun(d, year0)), year0, NoLeap)
					require.NoError(t, err)
					require.Equal(t, d, got)
				}
			}
		}
	}
}

func TestFormatYear(t *testing.T) {
	assert.Equal(t, "0005", FormatYear(5))
	assert.Equal(t, "9999", FormatYear(9999))
	assert.Equal(t, "10000", FormatYear(10000))
	assert.Equal(t, "123456", FormatYear(123456))
}

func TestDateFormatting(t *testing.T) {
	d := Date{10, 1, 1}
	assert.Equal(t, "0010-01-01", d.String())
	assert.Equal(t, "00100101", d.Compact())
	assert.True(t, d.Before(Date{10, 1, 2}))
	assert.False(t, d.Before(d))
}

func TestFromDateInt(t *testing.T) {
	d, err := FromDateInt(50101)
	require.NoError(t, err)
	assert.Equal(t, Date{5, 1, 1}, d)

	d, err = FromDateInt(18500228)
	require.NoError(t, err)
	assert.Equal(t, Date{1850, 2, 28}, d)

	_, err = FromDateInt(50229)
	assert.ErrorIs(t, err, fault.ErrBadDate)
	_, err = FromDateInt(51301)
	assert.ErrorIs(t, err, fault.ErrBadDate)
}

func TestDaysInMonth(t *testing.T) {
	total := 0
	for m := 1; m <= 12; m++ {
		total += DaysInMonth(m)
	}
	assert.Equal(t, DaysPerYear, total)
	assert.Equal(t, 28, DaysInMonth(2))
	assert.Equal(t, 31, DaysInMonth(12))
}
