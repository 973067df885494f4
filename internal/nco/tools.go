package nco

import (
	"context"
	"strings"
)

// Toolset binds tool paths to a Runner and exposes one method per tool
// contract. It satisfies the tool interfaces declared by the scheduler,
// verify and ncmeta packages.
type Toolset struct {
	Paths  Paths
	Runner *Runner
}

// NewToolset returns a Toolset with default paths filled in.
func NewToolset(p Paths, r *Runner) *Toolset {
	if r == nil {
		r = &Runner{}
	}
	return &Toolset{Paths: p.withDefaults(), Runner: r}
}

// Concat merges inputs, in order, into output at the given deflate level.
func (t *Toolset) Concat(ctx context.Context, inputs []string, output string, level int) error {
	args := ConcatArgs(t.Paths, output, level)
	stdin := strings.NewReader(strings.Join(inputs, "\n") + "\n")
	res := t.Runner.Execute(ctx, args, stdin)
	if res.Err != nil {
		return toolError("concat", output, args, res)
	}
	return nil
}

// Compress rewrites one input as a deflated output.
func (t *Toolset) Compress(ctx context.Context, input, output string, level int) error {
	args := CompressArgs(t.Paths, input, output, level)
	res := t.Runner.Execute(ctx, args, nil)
	if res.Err != nil {
		return toolError("compress", input, args, res)
	}
	return nil
}

// Extract copies records lo..hi of dim from input into output.
func (t *Toolset) Extract(ctx context.Context, input, output, dim string, lo, hi int) error {
	args := ExtractArgs(t.Paths, input, output, dim, lo, hi)
	res := t.Runner.Execute(ctx, args, nil)
	if res.Err != nil {
		return toolError("extract", input, args, res)
	}
	return nil
}

// Compare reports whether a and b hold identical data. nccmp exits 1 on a
// difference; any other non-zero status is a tool failure.
func (t *Toolset) Compare(ctx context.Context, a, b string) (bool, error) {
	args := CompareArgs(t.Paths, a, b)
	res := t.Runner.Execute(ctx, args, nil)
	switch {
	case res.Err == nil:
		return true, nil
	case res.ExitCode == 1:
		return false, nil
	default:
		return false, toolError("compare", a, args, res)
	}
}

// Dump runs ncks in values mode and returns its stdout.
func (t *Toolset) Dump(ctx context.Context, file, variable string) (string, error) {
	args := ValuesArgs(t.Paths, file, variable)
	res := t.Runner.Execute(ctx, args, nil)
	if res.Err != nil {
		return "", toolError("read "+variable, file, args, res)
	}
	return res.Stdout, nil
}

// DumpMetadata runs ncks in metadata mode and returns its stdout.
func (t *Toolset) DumpMetadata(ctx context.Context, file, variable string) (string, error) {
	args := AttributesArgs(t.Paths, file, variable)
	res := t.Runner.Execute(ctx, args, nil)
	if res.Err != nil {
		return "", toolError("read "+variable+" attributes", file, args, res)
	}
	return res.Stdout, nil
}
