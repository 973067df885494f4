// Package nco builds and executes the external NetCDF tools a run depends
// on: ncrcat for record concatenation, ncks for single-file compression,
// hyperslab extraction and metadata dumps, and nccmp for frame comparison.
//
// Argument construction (builder.go) is kept separate from execution
// (executor.go) so command lines can be tested without the tools installed.
// Failed invocations are wrapped as fault.KindTool errors carrying the tail
// of the tool's stderr (errors.go).
package nco
