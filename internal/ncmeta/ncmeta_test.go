package ncmeta

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/histpack/internal/fault"
)

// Realistic `ncks --trd -m -M -C -v time` output for a CICE daily file.
const sampleTimeMetadata = `Global attribute 0: title, size = 21 NC_CHAR, value = sea ice model output
Global attribute 1: conventions, size = 6 NC_CHAR, value = CF-1.0
time: type NC_DOUBLE, 1 dimension, 4 attributes, chunked? no, compressed? no, packed? no
time size (RAM) = 1*sizeof(NC_DOUBLE) = 1*8 = 8 bytes
time dimension 0: time, size = 1 NC_DOUBLE, dim. ID = 0 (UNLIMITED) (CRD)
time attribute 0: long_name, size = 10 NC_CHAR, value = model time
time attribute 1: units, size = 30 NC_CHAR, value = days since 0001-01-01 00:00:00
time attribute 2: calendar, size = 6 NC_CHAR, value = noleap
time attribute 3: bounds, size = 11 NC_CHAR, value = time_bounds
`

type fakeDumper struct {
	values   map[string]string
	metadata map[string]string
	err      error
}

func (f *fakeDumper) Dump(_ context.Context, file, variable string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[file+":"+variable], nil
}

func (f *fakeDumper) DumpMetadata(_ context.Context, file, variable string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.metadata[file+":"+variable], nil
}

func TestParseValues(t *testing.T) {
	vals, err := ParseValues("1461\n1462\n1463.5\n")
	require.NoError(t, err)
	assert.Equal(t, []float64{1461, 1462, 1463.5}, vals)

	vals, err = ParseValues("")
	require.NoError(t, err)
	assert.Empty(t, vals)

	_, err = ParseValues("50101\n_\n")
	assert.ErrorIs(t, err, fault.ErrBadDate)
}

func TestParseAttributes(t *testing.T) {
	attrs := ParseAttributes(sampleTimeMetadata, "time")
	assert.Equal(t, "days since 0001-01-01 00:00:00", attrs["units"])
	assert.Equal(t, "noleap", attrs["calendar"])
	assert.Equal(t, "time_bounds", attrs["bounds"])
	assert.NotContains(t, attrs, "title")
}

func TestProvider_Attribute(t *testing.T) {
	p := NewProvider(&fakeDumper{metadata: map[string]string{"f.nc:time": sampleTimeMetadata}})

	v, err := p.Attribute(context.Background(), "f.nc", "time", "calendar")
	require.NoError(t, err)
	assert.Equal(t, "noleap", v)

	_, err = p.Attribute(context.Background(), "f.nc", "time", "missing_value")
	require.ErrorIs(t, err, fault.ErrMissingMetadata)
	assert.Equal(t, fault.KindCalendar, fault.KindOf(err))
}

func TestProvider_ValuesPropagatesToolError(t *testing.T) {
	boom := &fault.Error{Kind: fault.KindTool, Op: "read time", Err: errors.New("ncks exited 1")}
	p := NewProvider(&fakeDumper{err: boom})
	_, err := p.Values(context.Background(), "f.nc", "time")
	assert.Equal(t, fault.KindTool, fault.KindOf(err))
}

func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		units string
		year0 int
		err   error
	}{
		{"days since 0001-01-01 00:00:00", 1, nil},
		{"days since 0001-01-01", 1, nil},
		{"days since 1850-1-1 0:00:00", 1850, nil},
		{"days since 0000-01-01T00:00:00Z", 0, nil},
		{"hours since 0001-01-01 00:00:00", 0, fault.ErrUnsupportedTimeUnits},
		{"days since 0001-07-01 00:00:00", 0, fault.ErrUnsupportedTimeUnits},
		{"seconds", 0, fault.ErrUnsupportedTimeUnits},
	}
	for _, tc := range tests {
		t.Run(tc.units, func(t *testing.T) {
			y, err := ParseTimeUnits(tc.units)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.year0, y)
		})
	}
}

func TestProvider_ReadTimeAxis(t *testing.T) {
	p := NewProvider(&fakeDumper{
		metadata: map[string]string{"f.nc:time": sampleTimeMetadata},
		values:   map[string]string{"f.nc:time": "1461\n1462\n1463\n"},
	})
	axis, err := p.ReadTimeAxis(context.Background(), "f.nc")
	require.NoError(t, err)
	assert.Equal(t, 1, axis.Year0)

	dates, err := axis.Dates()
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "0005-01-01", dates[0].String())
	assert.Equal(t, "0005-01-03", dates[2].String())
}

func TestProvider_ReadTimeAxisRejectsGregorian(t *testing.T) {
	meta := `time attribute 0: units, size = 30 NC_CHAR, value = days since 0001-01-01 00:00:00
time attribute 1: calendar, size = 9 NC_CHAR, value = gregorian
`
	p := NewProvider(&fakeDumper{metadata: map[string]string{"f.nc:time": meta}})
	_, err := p.ReadTimeAxis(context.Background(), "f.nc")
	require.ErrorIs(t, err, fault.ErrUnsupportedCalendar)
	assert.Equal(t, fault.ExitCalendar, fault.ExitCode(err))
}

func TestProvider_ReadDates(t *testing.T) {
	p := NewProvider(&fakeDumper{values: map[string]string{"f.nc:date": "120701\n120702\n"}})
	dates, err := p.ReadDates(context.Background(), "f.nc")
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, "0012-07-02", dates[1].String())

	p = NewProvider(&fakeDumper{values: map[string]string{"f.nc:date": "121399\n"}})
	_, err = p.ReadDates(context.Background(), "f.nc")
	assert.ErrorIs(t, err, fault.ErrBadDate)
}
