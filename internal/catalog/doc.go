// Package catalog scans a case's short-term archive, classifies every history
// file by stream and date, and folds the files into merge units: the sets of
// inputs that become one output file.
//
// Classification prefers the date encoded in the filename and falls back to
// the file's own time metadata when the filename is not precise enough for
// the active merge mode. Units are emitted in a deterministic order so two
// scans of an unchanged tree yield identical plans.
package catalog
