// Package runner schedules tasks over their dependency graph.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spachava753/sitebuild/internal/models"
)

// Task is a unit of work in the graph.
type Task interface {
	Run(ctx context.Context, logger *slog.Logger) (*models.TaskOutput, error)
}

// Runner executes a graph. Runs of the same task never overlap.
type Runner struct {
	graph   *Graph
	workers int
	logger  *slog.Logger
	metrics *Metrics

	locks map[string]*sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds the number of tasks running at once.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the base logger. Each task logs through a child logger
// carrying its id.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics records task outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New creates a Runner for graph.
func New(graph *Graph, opts ...Option) *Runner {
	r := &Runner{
		graph:   graph,
		workers: len(graph.nodes),
		logger:  slog.Default(),
		locks:   make(map[string]*sync.Mutex, len(graph.nodes)),
	}
	for id := range graph.nodes {
		r.locks[id] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	return r
}

// Graph returns the graph the runner executes.
func (r *Runner) Graph() *Graph {
	return r.graph
}

// Build runs every task once. A task starts after all its prerequisites have
// completed; tasks with no unmet prerequisites run concurrently. A failed task
// causes its dependents to be skipped but never stops unrelated tasks.
func (r *Runner) Build(ctx context.Context) *models.BuildResult {
	startTime := time.Now()
	total := len(r.graph.nodes)

	readyChan := make(chan string, total)
	resultChan := make(chan *models.TaskResult, total)

	var wg sync.WaitGroup
	for range min(r.workers, max(total, 1)) {
		wg.Go(func() {
			for id := range readyChan {
				resultChan <- r.execute(ctx, id)
			}
		})
	}

	pending := make(map[string]int, total)
	results := make(map[string]*models.TaskResult, total)
	inflight := 0
	for _, id := range r.graph.order {
		pending[id] = len(r.graph.nodes[id].DependsOn)
		if pending[id] == 0 {
			readyChan <- id
			inflight++
		}
	}

	var skip func(id, cause string)
	skip = func(id, cause string) {
		if results[id] != nil {
			return
		}
		r.logger.Warn("skipping task due to upstream failure", "task", id, "dependency", cause)
		results[id] = &models.TaskResult{
			Task:      id,
			Status:    models.TaskSkipped,
			StartedAt: time.Now(),
			SkippedBy: cause,
		}
		r.metrics.observeTask(results[id])
		for _, dep := range r.graph.dependents[id] {
			skip(dep, id)
		}
	}

	for inflight > 0 {
		res := <-resultChan
		inflight--
		results[res.Task] = res

		for _, dep := range r.graph.dependents[res.Task] {
			if !res.Completed() {
				skip(dep, res.Task)
				continue
			}
			pending[dep]--
			if pending[dep] == 0 && results[dep] == nil {
				readyChan <- dep
				inflight++
			}
		}
	}
	close(readyChan)
	wg.Wait()

	br := &models.BuildResult{
		Tasks:     results,
		StartedAt: startTime,
		EndedAt:   time.Now(),
	}
	br.TotalDurationSec = br.EndedAt.Sub(br.StartedAt).Seconds()
	r.metrics.observeBuild(br)
	return br
}

// RunTask runs a single task followed by the tasks in its Also list, in
// order, without consulting prerequisites. It is used for watch triggers.
func (r *Runner) RunTask(ctx context.Context, id string) ([]*models.TaskResult, error) {
	n, ok := r.graph.nodes[id]
	if !ok {
		return nil, fmt.Errorf("unknown task %q", id)
	}

	results := []*models.TaskResult{r.execute(ctx, id)}
	for _, also := range n.Also {
		results = append(results, r.execute(ctx, also))
	}
	return results, nil
}

// execute runs one task under its lock and classifies the outcome.
func (r *Runner) execute(ctx context.Context, id string) *models.TaskResult {
	lock := r.locks[id]
	lock.Lock()
	defer lock.Unlock()

	logger := r.logger.With("task", id)
	res := &models.TaskResult{Task: id, StartedAt: time.Now()}

	logger.Debug("task started")
	out, err := r.graph.nodes[id].Task.Run(ctx, logger)
	res.DurationSec = since(res.StartedAt)
	if out != nil {
		res.Written = out.Written
		res.Errors = append(res.Errors, out.Problems...)
	}

	switch {
	case err != nil:
		res.Status = models.TaskFailed
		res.Errors = append(res.Errors, classify(id, err))
		logger.Error("task failed", "error", err, "duration", res.DurationSec)
	case len(res.Errors) > 0:
		res.Status = models.TaskDegraded
		logger.Warn("task finished with errors", "errors", len(res.Errors), "duration", res.DurationSec)
	default:
		res.Status = models.TaskSucceeded
		logger.Info("task finished", "files", len(res.Written), "duration", res.DurationSec)
	}

	r.metrics.observeTask(res)
	return res
}

func classify(id string, err error) *models.BuildError {
	var be *models.BuildError
	if errors.As(err, &be) {
		if be.Task == "" {
			be.Task = id
		}
		return be
	}
	return &models.BuildError{Type: models.ErrIO, Task: id, Message: err.Error(), Err: err}
}
