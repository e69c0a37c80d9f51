// Package watch re-runs a category's task when one of its sources changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"

	"github.com/spachava753/sitebuild/internal/fileset"
	"github.com/spachava753/sitebuild/internal/models"
)

// Runner re-runs a single task and whatever it names in Also.
type Runner interface {
	RunTask(ctx context.Context, id string) ([]*models.TaskResult, error)
}

// Notifier receives an event after every rebuild that wrote output.
type Notifier interface {
	Notify(ev models.ReloadEvent)
}

// Watcher maps filesystem events to category rebuilds.
type Watcher struct {
	root     string
	destRoot string
	patterns map[string][]string
	runner   Runner
	notifier Notifier
	wait     time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	triggers map[string]func()
	cancels  []func()
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a category must be quiet before it rebuilds.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.wait = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a Watcher for the enabled categories of cfg. Only the positive
// patterns are watched, so an edit to an excluded partial still rebuilds the
// category that imports it. Vendor categories also watch the bower manifest.
func New(cfg models.Config, root string, r Runner, n Notifier, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		destRoot: path.Clean(cfg.DestRoot),
		patterns: make(map[string][]string),
		runner:   r,
		notifier: n,
		wait:     100 * time.Millisecond,
		logger:   slog.Default(),
		triggers: make(map[string]func()),
	}
	for name, cat := range cfg.Enabled() {
		patterns, _ := fileset.Split(cat.Source)
		if cat.Vendor && cfg.Bower.Manifest != "" {
			patterns = append(patterns, cfg.Bower.Manifest)
		}
		w.patterns[name] = patterns
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run subscribes to the source directories and handles events until ctx is
// done. Rebuild failures are logged and never end the loop.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()
	defer w.stop()

	dirs := w.dirs()
	for _, dir := range dirs {
		w.addTree(fsw, dir)
	}
	w.logger.Info("watching sources", "categories", len(w.patterns), "directories", len(dirs))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if ev.Op.Has(fsnotify.Create) {
		if info, err := fs.Stat(os.DirFS(w.root), rel); err == nil && info.IsDir() {
			if w.watched(rel) {
				w.addTree(fsw, rel)
			}
			return
		}
	}
	w.Changed(ctx, rel)
}

// Changed schedules a rebuild of every category whose patterns select the
// project relative path name. Paths inside the destination root are ignored.
func (w *Watcher) Changed(ctx context.Context, name string) {
	if name == w.destRoot || strings.HasPrefix(name, w.destRoot+"/") {
		return
	}
	for cat, patterns := range w.patterns {
		if fileset.Match(patterns, name) {
			w.logger.Debug("source changed", "path", name, "category", cat)
			w.trigger(ctx, cat)
		}
	}
}

func (w *Watcher) trigger(ctx context.Context, cat string) {
	w.mu.Lock()
	fn, ok := w.triggers[cat]
	if !ok {
		var cancel func()
		fn, cancel = debounce.New(w.wait, func() { w.rebuild(ctx, cat) })
		w.triggers[cat] = fn
		w.cancels = append(w.cancels, cancel)
	}
	w.mu.Unlock()
	fn()
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cancel := range w.cancels {
		cancel()
	}
	w.cancels = nil
	w.triggers = make(map[string]func())
}

// rebuild runs the category and announces what it wrote. One event is sent
// per trigger, covering the category and its Also tasks.
func (w *Watcher) rebuild(ctx context.Context, cat string) {
	if ctx.Err() != nil {
		return
	}
	results, err := w.runner.RunTask(ctx, cat)
	if err != nil {
		w.logger.Error("rebuild failed", "category", cat, "error", err)
		return
	}

	var paths []string
	completed := false
	for _, res := range results {
		switch res.Status {
		case models.TaskSucceeded:
			w.logger.Info("rebuilt", "task", res.Task, "files", len(res.Written), "duration", res.DurationSec)
		case models.TaskDegraded:
			w.logger.Warn("rebuilt with errors", "task", res.Task, "errors", len(res.Errors))
		default:
			w.logger.Error("rebuild failed", "task", res.Task, "status", res.Status, "errors", len(res.Errors))
		}
		if res.Completed() {
			completed = true
			for _, p := range res.Written {
				paths = append(paths, strings.TrimPrefix(p, w.destRoot+"/"))
			}
		}
	}
	if !completed || w.notifier == nil {
		return
	}
	w.notifier.Notify(models.NewReloadEvent(cat, paths))
}

// dirs returns the glob base directories of every positive pattern.
func (w *Watcher) dirs() []string {
	seen := make(map[string]bool)
	for _, patterns := range w.patterns {
		for _, p := range patterns {
			seen[fileset.Base(p)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for dir := range seen {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) watched(dir string) bool {
	for _, patterns := range w.patterns {
		if fileset.Under(patterns, dir) {
			return true
		}
	}
	return false
}

// addTree subscribes to dir and its subdirectories. The project root itself
// is watched without descending, and the destination root is skipped.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) {
	if dir == "." {
		w.add(fsw, ".")
		return
	}
	err := fs.WalkDir(os.DirFS(w.root), dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p == w.destRoot || path.Base(p) == ".git" {
			return fs.SkipDir
		}
		w.add(fsw, p)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("failed to walk source directory", "path", dir, "error", err)
	}
}

func (w *Watcher) add(fsw *fsnotify.Watcher, dir string) {
	if err := fsw.Add(filepath.Join(w.root, filepath.FromSlash(dir))); err != nil {
		w.logger.Warn("failed to watch directory", "path", dir, "error", err)
	}
}
