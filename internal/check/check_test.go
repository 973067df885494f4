package check

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/nco"
)

type recordLogger struct{ success, warn, errs []string }

func (r *recordLogger) Info(string, ...interface{}) {}
func (r *recordLogger) Success(f string, a ...interface{}) {
	r.success = append(r.success, fmt.Sprintf(f, a...))
}
func (r *recordLogger) Warn(f string, a ...interface{}) { r.warn = append(r.warn, fmt.Sprintf(f, a...)) }
func (r *recordLogger) Error(f string, a ...interface{}) {
	r.errs = append(r.errs, fmt.Sprintf(f, a...))
}

// fakeBin writes executable scripts named after tools into a fresh
// directory and makes it the only PATH entry.
func fakeBin(t *testing.T, names ...string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		script := "#!/bin/sh\necho \"NCO netCDF Operators version 5.2.4\" >&2\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(script), 0o755))
	}
	t.Setenv("PATH", dir)
}

func TestCheckDeps_AllPresent(t *testing.T) {
	fakeBin(t, "ncks", "ncrcat", "nccmp")
	assert.NoError(t, CheckDeps(nco.DefaultPaths()))
}

func TestCheckDeps_Missing(t *testing.T) {
	fakeBin(t, "ncks")
	err := CheckDeps(nco.DefaultPaths())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNcrcatNotFound)
	assert.ErrorIs(t, err, ErrNccmpNotFound)
	assert.NotErrorIs(t, err, ErrNcksNotFound)
	assert.ErrorIs(t, err, fault.ErrToolFailed)
	assert.Equal(t, fault.ExitTool, fault.ExitCode(err))
}

func TestRunCheck_ReportsEveryTool(t *testing.T) {
	fakeBin(t, "ncks", "nccmp")
	log := &recordLogger{}
	ok := RunCheck(nco.DefaultPaths(), log)

	assert.False(t, ok)
	require.Len(t, log.success, 2)
	assert.Contains(t, log.success[0], "version 5.2.4")
	require.Len(t, log.errs, 1)
	assert.Contains(t, log.errs[0], "ncrcat")
}
