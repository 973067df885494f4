// Package pipeline orchestrates one archive run.
//
// Run resolves paths, opens the run log and metrics, then drives the three
// stages in order:
//
//   - catalog: scan each component directory and group files into merge units
//   - scheduler: one job per unit under the worker budget (compress, stamp,
//     checksum, verify, move)
//   - report: the single end-of-run summary and exit code
//
// Byte totals and the compression ratio are logged from [RunStats].
package pipeline
