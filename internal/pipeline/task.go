// Package pipeline implements the generic transform task: it reads a
// category's sources, applies the declared steps in order and writes the
// result under the category's destination.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/sitebuild/internal/fileset"
	"github.com/spachava753/sitebuild/internal/models"
	"github.com/spachava753/sitebuild/internal/sourcemap"
)

// VendorSource provides the ordered vendor file list.
type VendorSource interface {
	Resolve(ctx context.Context) (models.VendorFileList, error)
}

// Options are shared by every task of a build.
type Options struct {
	// Fs is rooted at the project directory. All paths are slash separated
	// and relative to it.
	Fs afero.Fs
	// Root is the project directory on disk, the working directory of
	// external compilers.
	Root      string
	VendorDir string
	Vendor    VendorSource
	// Compilers overrides the external compiler per compiler name.
	Compilers map[string]Compiler
}

// File is one entry of the in-memory file set passed between steps.
type File struct {
	// Path is relative to the glob base and becomes the path below the
	// destination directory.
	Path string
	// Source is the project relative path the file was read from, empty for
	// files created by a step.
	Source   string
	Contents []byte
	Map      *sourcemap.Map
}

// Task runs one category's pipeline.
type Task struct {
	cat  models.Category
	opts Options
	fsys fs.FS
}

// New creates the task for cat.
func New(cat models.Category, opts Options) *Task {
	return &Task{cat: cat, opts: opts, fsys: afero.NewIOFS(opts.Fs)}
}

// Name returns the category name.
func (t *Task) Name() string {
	return t.cat.Name
}

// Run executes the pipeline once. The returned error is fatal for the task;
// contained transform errors are reported in the output instead.
func (t *Task) Run(ctx context.Context, logger *slog.Logger) (*models.TaskOutput, error) {
	sources, err := t.collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		if t.cat.Required {
			return nil, &models.BuildError{Type: models.ErrConfig, Task: t.cat.Name, Message: "required category matched no files"}
		}
		logger.Debug("no files matched")
		return &models.TaskOutput{}, nil
	}

	files, err := t.read(sources)
	if err != nil {
		return nil, err
	}

	st := &state{
		task:   t,
		logger: logger,
		files:  files,
		track:  t.cat.HasStep(models.StepSourcemap),
	}
	if st.track {
		for _, f := range st.files {
			f.Map = sourcemap.Identity(f.Path, string(f.Contents))
		}
	}

	for _, step := range t.cat.Steps {
		if err := st.apply(ctx, step); err != nil {
			return nil, err
		}
	}

	written, err := t.write(st.files)
	if err != nil {
		return &models.TaskOutput{Written: written, Problems: st.problems}, err
	}

	logger.Debug("task wrote files", "count", len(written), "problems", len(st.problems))
	return &models.TaskOutput{Written: written, Problems: st.problems}, nil
}

// Outputs predicts the destination paths a run would write from the sources
// currently on disk. Vendor categories are not predicted.
func (t *Task) Outputs(ctx context.Context) ([]string, error) {
	if t.cat.Vendor {
		return nil, nil
	}
	sources, err := t.collect(ctx)
	if err != nil || len(sources) == 0 {
		return nil, err
	}

	compiles := t.cat.HasStep(models.StepCompile)
	external := false
	for _, s := range t.cat.Steps {
		if s.Kind == models.StepSourcemap && !s.Inline {
			external = true
		}
	}

	var names []string
	if target := t.cat.Target(); target != "" {
		names = []string{target}
	} else {
		for _, src := range sources {
			rel := src.Rel()
			if compiles {
				if strings.HasPrefix(path.Base(rel), "_") {
					continue
				}
				rel = strings.TrimSuffix(rel, path.Ext(rel)) + ".css"
			}
			names = append(names, rel)
		}
	}

	var out []string
	for _, name := range names {
		target := path.Join(t.cat.Dest, name)
		out = append(out, target)
		if external {
			out = append(out, target+".map")
		}
	}
	return out, nil
}

func (t *Task) collect(ctx context.Context) ([]fileset.File, error) {
	if !t.cat.Vendor {
		files, err := fileset.Expand(t.fsys, t.cat.Source)
		if err != nil {
			return nil, &models.BuildError{Type: models.ErrConfig, Task: t.cat.Name, Message: err.Error(), Err: err}
		}
		return files, nil
	}

	if t.opts.Vendor == nil {
		return nil, nil
	}
	list, err := t.opts.Vendor.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving vendor files: %w", err)
	}
	files := make([]fileset.File, 0, len(list))
	for _, p := range list {
		files = append(files, fileset.File{Path: path.Join(t.opts.VendorDir, p), Base: t.opts.VendorDir})
	}
	return files, nil
}

// read loads every source concurrently, keeping match order.
func (t *Task) read(sources []fileset.File) ([]*File, error) {
	files := make([]*File, len(sources))

	var g errgroup.Group
	g.SetLimit(16)
	for i, src := range sources {
		g.Go(func() error {
			data, err := afero.ReadFile(t.opts.Fs, src.Path)
			if err != nil {
				return models.IOError(t.cat.Name, src.Path, err)
			}
			files[i] = &File{Path: src.Rel(), Source: src.Path, Contents: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

var tmpSeq atomic.Uint64

// write stores files below the destination. Each file is written to a
// temporary name and renamed into place.
func (t *Task) write(files []*File) ([]string, error) {
	var written []string
	for _, f := range files {
		target := path.Join(t.cat.Dest, f.Path)
		if err := t.opts.Fs.MkdirAll(path.Dir(target), 0755); err != nil {
			return written, models.IOError(t.cat.Name, target, err)
		}

		tmp := fmt.Sprintf("%s.%d-%d.tmp", target, os.Getpid(), tmpSeq.Add(1))
		if err := afero.WriteFile(t.opts.Fs, tmp, f.Contents, 0644); err != nil {
			return written, models.IOError(t.cat.Name, target, err)
		}
		if err := t.opts.Fs.Rename(tmp, target); err != nil {
			_ = t.opts.Fs.Remove(tmp)
			return written, models.IOError(t.cat.Name, target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

// state is the file set flowing through the steps of one run.
type state struct {
	task     *Task
	logger   *slog.Logger
	files    []*File
	track    bool
	problems []*models.BuildError
}

func (st *state) apply(ctx context.Context, step models.Step) error {
	before := len(st.problems)

	var err error
	switch step.Kind {
	case models.StepCompile:
		err = st.compile(ctx, step)
	case models.StepPurge:
		err = st.purge(step)
	case models.StepConcat:
		err = st.concat(step)
	case models.StepMinify:
		err = st.minify()
	case models.StepSourcemap:
		st.sourcemap(step)
	case models.StepOptimize:
		err = st.optimize(step)
	case models.StepInject:
		err = st.inject(ctx, step)
	default:
		err = &models.BuildError{Type: models.ErrConfig, Task: st.task.cat.Name, Message: fmt.Sprintf("unknown step kind %q", step.Kind)}
	}
	if err != nil {
		return err
	}

	if len(st.problems) > before {
		st.logger.Warn("step failed, its output is empty for this run", "step", step.Kind, "errors", len(st.problems)-before)
		st.files = nil
	}
	return nil
}

// contain records a transform error without failing the task.
func (st *state) contain(f *File, line int, err error) {
	be := &models.BuildError{
		Type:    models.ErrTransform,
		Task:    st.task.cat.Name,
		Path:    f.Source,
		Line:    line,
		Message: err.Error(),
		Err:     err,
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		be.Message = ce.Message
		if be.Line == 0 {
			be.Line = ce.Line
		}
	}
	if be.Path == "" {
		be.Path = f.Path
	}
	st.logger.Error("transform error", "path", be.Path, "line", be.Line, "error", be.Message)
	st.problems = append(st.problems, be)
}

// resetMap restarts source tracking from the file's current contents.
func (st *state) resetMap(f *File) {
	if st.track {
		f.Map = sourcemap.Identity(f.Path, string(f.Contents))
	}
}
