package nco

import (
	"fmt"
	"strconv"
)

// Paths names the tool binaries. Empty fields fall back to [DefaultPaths].
type Paths struct {
	Ncks   string `mapstructure:"ncks"`
	Ncrcat string `mapstructure:"ncrcat"`
	Nccmp  string `mapstructure:"nccmp"`
}

// DefaultPaths resolves every tool through PATH.
func DefaultPaths() Paths {
	return Paths{Ncks: "ncks", Ncrcat: "ncrcat", Nccmp: "nccmp"}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	if p.Ncks == "" {
		p.Ncks = d.Ncks
	}
	if p.Ncrcat == "" {
		p.Ncrcat = d.Ncrcat
	}
	if p.Nccmp == "" {
		p.Nccmp = d.Nccmp
	}
	return p
}

// ConcatArgs builds the ncrcat command that concatenates records into output
// as deflated netCDF-4. Input names are not on the command line: ncrcat reads
// them from stdin when only the output file is given, which keeps long merges
// clear of the argument length limit.
func ConcatArgs(p Paths, output string, level int) []string {
	p = p.withDefaults()
	return []string{p.Ncrcat, "-O", "-h", "-4", "-L", strconv.Itoa(level), output}
}

// CompressArgs builds the ncks command that rewrites a single file as
// deflated netCDF-4.
func CompressArgs(p Paths, input, output string, level int) []string {
	p = p.withDefaults()
	return []string{p.Ncks, "-O", "-h", "-4", "-L", strconv.Itoa(level), input, output}
}

// ExtractArgs builds the ncks hyperslab command copying records lo..hi
// (inclusive, zero-based) of dim from input into output.
func ExtractArgs(p Paths, input, output, dim string, lo, hi int) []string {
	p = p.withDefaults()
	return []string{p.Ncks, "-O", "-h", "-d", fmt.Sprintf("%s,%d,%d", dim, lo, hi), input, output}
}

// CompareArgs builds the nccmp command comparing data and metadata of a and b.
// -f keeps comparing past the first difference so every one is reported.
func CompareArgs(p Paths, a, b string) []string {
	p = p.withDefaults()
	return []string{p.Nccmp, "-d", "-m", "-f", a, b}
}

// Print formats for ncks -s. ncks hands the format to printf unchanged, so it
// must match the variable's storage type.
const (
	FloatFormat   = `%.17g\n`
	IntegerFormat = `%d\n`
)

// integerVars are the CESM coordinate variables stored as NC_INT.
var integerVars = map[string]bool{
	"date":    true,
	"datesec": true,
	"nbdate":  true,
	"nbsec":   true,
	"ndcur":   true,
	"nscur":   true,
	"nsteph":  true,
}

// ValueFormat is the -s format used to print variable.
func ValueFormat(variable string) string {
	if integerVars[variable] {
		return IntegerFormat
	}
	return FloatFormat
}

// ValuesArgs builds the ncks command that prints the values of variable one
// per line: integers as integers, everything else with full float precision.
func ValuesArgs(p Paths, file, variable string) []string {
	p = p.withDefaults()
	return []string{p.Ncks, "--trd", "-H", "-C", "-s", ValueFormat(variable), "-v", variable, file}
}

// AttributesArgs builds the ncks command that prints the metadata of
// variable, including its attributes, without data.
func AttributesArgs(p Paths, file, variable string) []string {
	p = p.withDefaults()
	return []string{p.Ncks, "--trd", "-m", "-M", "-C", "-v", variable, file}
}
