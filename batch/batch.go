// Package batch converts every request document under a directory tree.
//
// Files are converted independently: one file failing never affects the
// output of another. Outputs mirror the input tree and are written only when
// conversion succeeds.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
	"github.com/robbyt/fantasy-adapters/reqconv/pipeline"
)

const documentExt = ".json"

// Converter converts one document. *pipeline.Pipeline implements it.
type Converter interface {
	From() format.Format
	To() format.Format
	Convert(doc []byte) (*pipeline.Result, error)
}

// FileResult is the outcome for one input file. Output is empty when the
// conversion failed.
type FileResult struct {
	Path     string            `json:"path"`
	Output   string            `json:"output,omitempty"`
	Warnings ir.Warnings       `json:"warnings,omitempty"`
	Failure  *pipeline.Failure `json:"failure,omitempty"`
}

// Report summarizes a run. Files are in lexicographic path order.
type Report struct {
	RunID     uuid.UUID     `json:"run_id"`
	From      format.Format `json:"from"`
	To        format.Format `json:"to"`
	StartedAt time.Time     `json:"started_at"`
	Files     []FileResult  `json:"files"`
	Converted int           `json:"converted"`
	Failed    int           `json:"failed"`
}

// Runner converts directory trees with a bounded number of workers.
type Runner struct {
	converter Converter
	workers   int
	suffix    string
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds the number of files converted at once. Values below 1
// mean one worker.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = max(n, 1)
	}
}

// WithSuffix inserts suffix before the extension of every output file name.
func WithSuffix(suffix string) Option {
	return func(r *Runner) {
		r.suffix = suffix
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner returns a Runner for converter.
func NewRunner(converter Converter, opts ...Option) *Runner {
	r := &Runner{
		converter: converter,
		workers:   1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run converts every *.json file under inputRoot into outputRoot.
//
// inputRoot may also name a single file, whose output is written directly
// into outputRoot. Per-file failures are recorded in the report, not returned;
// the error is non-nil only when the tree cannot be walked or ctx is done.
// Files not yet started when ctx is cancelled are left out of the report.
func (r *Runner) Run(ctx context.Context, inputRoot, outputRoot string) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		From:      r.converter.From(),
		To:        r.converter.To(),
		StartedAt: time.Now().UTC(),
	}

	files, err := collect(inputRoot)
	if err != nil {
		return nil, err
	}
	r.logger.Info("starting batch", "run_id", report.RunID, "files", len(files), "workers", r.workers)

	results := make([]*FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, rel := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.convertFile(inputRoot, outputRoot, rel)
			return nil
		})
	}
	waitErr := g.Wait()

	for _, res := range results {
		if res == nil {
			continue
		}
		report.Files = append(report.Files, *res)
		if res.Failure != nil {
			report.Failed++
		} else {
			report.Converted++
		}
	}

	if waitErr == nil {
		waitErr = ctx.Err()
	}
	if waitErr != nil {
		return report, fmt.Errorf("batch interrupted: %w", waitErr)
	}
	r.logger.Info("batch finished", "run_id", report.RunID, "converted", report.Converted, "failed", report.Failed)
	return report, nil
}

func (r *Runner) convertFile(inputRoot, outputRoot, rel string) *FileResult {
	src := filepath.Join(inputRoot, rel)
	if rel == "" {
		src = inputRoot
		rel = filepath.Base(inputRoot)
	}
	res := &FileResult{Path: filepath.ToSlash(rel)}

	fail := func(err error) *FileResult {
		f := pipeline.Classify(err)
		res.Failure = &f
		r.logger.Warn("conversion failed", "file", res.Path, "kind", f.Kind, "path", f.Path, "error", f.Message)
		return res
	}

	doc, err := os.ReadFile(src)
	if err != nil {
		return fail(fmt.Errorf("failed to read input: %w", err))
	}
	out, err := r.converter.Convert(doc)
	if err != nil {
		return fail(err)
	}
	res.Warnings = out.Warnings

	dst := filepath.Join(outputRoot, OutputName(rel, r.suffix))
	if err := writeAtomic(dst, out.Document); err != nil {
		return fail(err)
	}
	res.Output = dst
	r.logger.Info("converted", "file", res.Path, "output", dst, "warnings", len(out.Warnings))
	return res
}

// OutputName returns rel with suffix inserted before its extension.
func OutputName(rel, suffix string) string {
	if suffix == "" {
		return rel
	}
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + suffix + ext
}

// collect lists the *.json files under root relative to it, sorted. A root
// that is a regular file yields a single empty relative path.
func collect(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if !info.IsDir() {
		return []string{""}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), documentExt) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk input: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place, so a failed write never leaves a partial document.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	_, werr := tmp.Write(data)
	merr := tmp.Chmod(0o644)
	cerr := tmp.Close()
	if err := errors.Join(werr, merr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	return nil
}

// WriteReport writes report as indented JSON to path.
func WriteReport(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}
