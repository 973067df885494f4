package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/metrics"
)

// Logger is the logging surface the builder needs.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Debug(string, ...interface{})
}

// Options controls one catalog build.
type Options struct {
	Source     string // case directory
	Output     string // output root
	// Case overrides the case name in output filenames. Empty keeps the
	// prefix of each unit's input filenames.
	Case       string
	Components []Spec
	Mode       Mode
	// KeepMonthly leaves monthly files monthly under Yearly mode.
	KeepMonthly bool
	// Workers bounds parallel classification. Values below 1 mean 1.
	Workers int
	// ProgressInterval is the number of classified files between progress
	// lines. Zero disables progress logging.
	ProgressInterval int
}

// Catalog is the frozen result of a build.
type Catalog struct {
	Units []*MergeUnit
	Files int
	Bytes int64
}

// Builder scans component directories and folds their files into units.
type Builder struct {
	opts       Options
	classifier *Classifier
	log        Logger
	metrics    *metrics.Metrics
}

// NewBuilder returns a builder. m may be nil.
func NewBuilder(opts Options, c *Classifier, log Logger, m *metrics.Metrics) *Builder {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Builder{opts: opts, classifier: c, log: log, metrics: m}
}

// scanEntry is one file found under a component directory.
type scanEntry struct {
	path string
	rel  string // relative to the component scan root
}

// Build scans every configured component in order and returns the frozen
// catalog. Any classification error is fatal and aborts the build.
func (b *Builder) Build(ctx context.Context) (*Catalog, error) {
	cat := &Catalog{}
	for _, group := range groupSpecs(b.opts.Components) {
		if err := ctx.Err(); err != nil {
			return nil, fault.New("catalog", b.opts.Source, fmt.Errorf("%w: %v", fault.ErrInterrupted, err))
		}
		units, files, bytes, err := b.buildComponent(ctx, group)
		if err != nil {
			return nil, err
		}
		cat.Units = append(cat.Units, units...)
		cat.Files += files
		cat.Bytes += bytes
	}
	return cat, nil
}

// groupSpecs returns specs grouped by component, in scan order.
func groupSpecs(specs []Spec) [][]Spec {
	var groups [][]Spec
	for _, s := range SortSpecs(specs) {
		n := len(groups)
		if n > 0 && groups[n-1][0].Component == s.Component {
			groups[n-1] = append(groups[n-1], s)
			continue
		}
		groups = append(groups, []Spec{s})
	}
	return groups
}

// ComponentDir is the directory scanned for comp.
func ComponentDir(source string, comp Component) string {
	if comp == Rest {
		return filepath.Join(source, "rest")
	}
	return filepath.Join(source, string(comp), "hist")
}

func (b *Builder) buildComponent(ctx context.Context, specs []Spec) ([]*MergeUnit, int, int64, error) {
	comp := specs[0].Component
	root := ComponentDir(b.opts.Source, comp)
	entries, err := discover(root, comp == Rest)
	if err != nil {
		return nil, 0, 0, err
	}
	b.log.Info("Scanning %s: %d file(s) in %s", comp, len(entries), root)

	files, err := b.classifyAll(ctx, comp, specs, entries)
	if err != nil {
		return nil, 0, 0, err
	}

	set := newUnitSet(b.opts.Mode, b.opts.KeepMonthly)
	var bytes int64
	for i, f := range files {
		bytes += f.Size
		if f.CopyOnly {
			err = set.addCopy(f, entries[i].rel)
		} else {
			err = set.addHistory(f)
		}
		if err != nil {
			return nil, 0, 0, err
		}
	}
	units, err := set.sorted(b.opts.Output, b.opts.Case)
	if err != nil {
		return nil, 0, 0, err
	}
	for _, u := range units {
		b.log.Debug("%s: %s", comp, u.describe())
	}
	b.log.Info("Catalogued %s: %d file(s) -> %d unit(s)", comp, len(files), len(units))
	return units, len(files), bytes, nil
}

// classifyAll classifies entries in parallel. Results keep entry order.
func (b *Builder) classifyAll(ctx context.Context, comp Component, specs []Spec, entries []scanEntry) ([]*HistoryFile, error) {
	files := make([]*HistoryFile, len(entries))
	var done atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Workers)
	for i, e := range entries {
		i, e := i, e
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return fault.New("catalog", e.path, fmt.Errorf("%w: %v", fault.ErrInterrupted, context.Cause(egCtx)))
			}
			f, err := b.classifyOne(egCtx, comp, specs, e)
			if err != nil {
				return err
			}
			files[i] = f
			b.metrics.FileScanned(string(comp))
			n := done.Add(1)
			if iv := int64(b.opts.ProgressInterval); iv > 0 && n%iv == 0 {
				b.log.Info("%s: classified %d/%d file(s)", comp, n, len(entries))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// classifyOne tries every spec of the component in order; a file no spec
// claims is copied verbatim.
func (b *Builder) classifyOne(ctx context.Context, comp Component, specs []Spec, e scanEntry) (*HistoryFile, error) {
	if strings.EqualFold(filepath.Ext(e.path), ".nc") && comp != Rest {
		for _, s := range specs {
			f, err := b.classifier.Classify(ctx, e.path, s)
			if errors.Is(err, ErrNotHistory) {
				continue
			}
			return f, err
		}
	}
	info, err := os.Stat(e.path)
	if err != nil {
		return nil, fault.New("scan", e.path, fmt.Errorf("%w: %v", fault.ErrMissingFile, err))
	}
	return &HistoryFile{
		Path:      e.path,
		Name:      filepath.Base(e.path),
		Component: comp,
		Label:     e.rel,
		CopyOnly:  true,
		Size:      info.Size(),
	}, nil
}

// discover lists regular files under root, sorted by path. Only the rest
// tree is walked recursively. Hidden entries are skipped.
func discover(root string, recursive bool) ([]scanEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fault.New("scan", root, fmt.Errorf("%w: %v", fault.ErrMissingFile, err))
	}
	if !info.IsDir() {
		return nil, fault.New("scan", root, fmt.Errorf("%w: not a directory", fault.ErrMissingFile))
	}

	var entries []scanEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, scanEntry{path: path, rel: rel})
		return nil
	})
	if err != nil {
		return nil, fault.New("scan", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	return entries, nil
}
