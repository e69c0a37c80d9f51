// Package site wires a configuration into runnable tasks.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/spachava753/sitebuild/internal/bower"
	"github.com/spachava753/sitebuild/internal/models"
	"github.com/spachava753/sitebuild/internal/pipeline"
	"github.com/spachava753/sitebuild/internal/runner"
)

// Site is a configured project ready to build.
type Site struct {
	Config   models.Config
	Root     string
	Fs       afero.Fs
	Runner   *runner.Runner
	Registry *prometheus.Registry

	tasks  []*pipeline.Task
	sass   *pipeline.DartSass
	logger *slog.Logger
}

type options struct {
	logger    *slog.Logger
	compilers map[string]pipeline.Compiler
	registry  *prometheus.Registry
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger used by every task.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCompilers replaces the stylesheet compilers by compiler name.
func WithCompilers(compilers map[string]pipeline.Compiler) Option {
	return func(o *options) { o.compilers = compilers }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New builds the task graph for cfg rooted at root. Prerequisites naming a
// disabled category are dropped.
func New(cfg models.Config, root string, opts ...Option) (*Site, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	compilers := make(map[string]pipeline.Compiler, len(o.compilers)+1)
	maps.Copy(compilers, o.compilers)
	var sass *pipeline.DartSass
	if _, ok := compilers["sass"]; !ok {
		sass = pipeline.NewDartSass(root, o.logger)
		compilers["sass"] = sass
	}

	fs := afero.NewBasePathFs(afero.NewOsFs(), root)
	popts := pipeline.Options{
		Fs:        fs,
		Root:      root,
		VendorDir: cfg.Bower.Dir,
		Vendor:    bower.NewResolver(afero.NewIOFS(fs), cfg.Bower),
		Compilers: compilers,
	}

	enabled := cfg.Enabled()
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]runner.Node, 0, len(names))
	tasks := make([]*pipeline.Task, 0, len(names))
	for _, name := range names {
		cat := enabled[name]
		task := pipeline.New(cat, popts)
		tasks = append(tasks, task)
		nodes = append(nodes, runner.Node{
			ID:        name,
			Task:      task,
			DependsOn: onlyEnabled(cat.DependsOn, enabled, o.logger, name),
			Also:      onlyEnabled(cat.Also, enabled, o.logger, name),
		})
	}

	graph, err := runner.NewGraph(nodes)
	if err != nil {
		return nil, err
	}

	r := runner.New(graph,
		runner.WithWorkers(cfg.Concurrency),
		runner.WithLogger(o.logger),
		runner.WithMetrics(runner.NewMetrics(o.registry)),
	)

	return &Site{
		Config:   cfg,
		Root:     root,
		Fs:       fs,
		Runner:   r,
		Registry: o.registry,
		tasks:    tasks,
		sass:     sass,
		logger:   o.logger,
	}, nil
}

func onlyEnabled(ids []string, enabled map[string]models.Category, logger *slog.Logger, owner string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := enabled[id]; !ok {
			logger.Debug("ignoring reference to disabled category", "task", owner, "category", id)
			continue
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Build checks that the destination root is writable and that no two tasks
// would write the same file, then runs every task.
func (s *Site) Build(ctx context.Context) (*models.BuildResult, error) {
	if err := s.Fs.MkdirAll(s.Config.DestRoot, 0755); err != nil {
		return nil, models.ConfigError("destination %s is not writable: %v", s.Config.DestRoot, err)
	}
	if err := s.checkOutputs(ctx); err != nil {
		return nil, err
	}
	res := s.Runner.Build(ctx)
	s.logger.Info("build finished",
		"succeeded", res.Count(models.TaskSucceeded),
		"degraded", res.Count(models.TaskDegraded),
		"failed", res.Count(models.TaskFailed),
		"skipped", res.Count(models.TaskSkipped),
		"duration", res.TotalDurationSec)
	return res, nil
}

// Clean removes the destination root.
func (s *Site) Clean() error {
	if err := s.Fs.RemoveAll(s.Config.DestRoot); err != nil {
		return fmt.Errorf("removing %s: %w", s.Config.DestRoot, err)
	}
	s.logger.Info("removed build output", "path", s.Config.DestRoot)
	return nil
}

// checkOutputs rejects a build in which two tasks would write the same
// destination path. Per-file outputs depend on the sources on disk, so this
// runs against the current tree rather than at config load.
func (s *Site) checkOutputs(ctx context.Context) error {
	owners := make(map[string]string)
	var errs []error
	for _, t := range s.tasks {
		outputs, err := t.Outputs(ctx)
		if err != nil {
			// reported by the task itself
			s.logger.Debug("skipping output check", "task", t.Name(), "error", err)
			continue
		}
		for _, p := range outputs {
			if other, ok := owners[p]; ok && other != t.Name() {
				errs = append(errs, models.ConfigError("categories %s and %s both write %s", other, t.Name(), p))
				continue
			}
			owners[p] = t.Name()
		}
	}
	return errors.Join(errs...)
}

// Close stops the stylesheet compiler processes started by the site.
func (s *Site) Close() error {
	if s.sass == nil {
		return nil
	}
	return s.sass.Close()
}
