package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/sitebuild/internal/config"
	"github.com/spachava753/sitebuild/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	written map[string][]string
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		calls: make(map[string]int),
		written: map[string][]string{
			"javascript": {"build/js/app.min.js"},
			"css":        {"build/css/x.css", "build/css/x.css.map"},
			"sass":       {"build/css/style.min.css", "build/css/style.min.css.map"},
		},
	}
}

func (f *fakeRunner) RunTask(_ context.Context, id string) ([]*models.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.err != nil {
		return nil, f.err
	}
	return []*models.TaskResult{{Task: id, Status: models.TaskSucceeded, Written: f.written[id]}}, nil
}

func (f *fakeRunner) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeRunner) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.ReloadEvent
}

func (f *fakeNotifier) Notify(ev models.ReloadEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) list() []models.ReloadEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ReloadEvent(nil), f.events...)
}

func newWatcher(r Runner, n Notifier) *Watcher {
	return New(config.DefaultConfig(), "/project", r, n,
		WithDebounce(20*time.Millisecond), WithLogger(discard))
}

func TestChangedCoalescesBursts(t *testing.T) {
	r, n := newFakeRunner(), &fakeNotifier{}
	w := newWatcher(r, n)
	defer w.stop()

	ctx := context.Background()
	for range 5 {
		w.Changed(ctx, "app/js/a.js")
	}

	require.Eventually(t, func() bool { return len(n.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, r.count("javascript"))
	assert.Equal(t, 1, r.total())
	events := n.list()
	require.Len(t, events, 1)
	assert.Equal(t, models.ReloadEvent{
		Category: "javascript",
		Paths:    []string{"js/app.min.js"},
		Kind:     models.ReloadPage,
	}, events[0])
}

func TestChangedStylesheetInjects(t *testing.T) {
	r, n := newFakeRunner(), &fakeNotifier{}
	w := newWatcher(r, n)
	defer w.stop()

	w.Changed(context.Background(), "app/css/x.css")

	require.Eventually(t, func() bool { return len(n.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := n.list()[0]
	assert.Equal(t, models.ReloadInject, ev.Kind)
	assert.Equal(t, []string{"css/x.css", "css/x.css.map"}, ev.Paths)
}

func TestChangedPartialRebuildsStylesheet(t *testing.T) {
	r, n := newFakeRunner(), &fakeNotifier{}
	w := newWatcher(r, n)
	defer w.stop()

	w.Changed(context.Background(), "app/sass/includes/_vars.scss")

	require.Eventually(t, func() bool { return r.count("sass") == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestChangedIgnoresUnrelatedPaths(t *testing.T) {
	r, n := newFakeRunner(), &fakeNotifier{}
	w := newWatcher(r, n)
	defer w.stop()

	ctx := context.Background()
	w.Changed(ctx, "build/js/app.min.js")
	w.Changed(ctx, "build/index.html")
	w.Changed(ctx, "go.mod")
	w.Changed(ctx, "app/js/notes.txt")

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, r.total())
	assert.Empty(t, n.list())
}

func TestChangedVendorManifest(t *testing.T) {
	r, n := newFakeRunner(), &fakeNotifier{}
	w := newWatcher(r, n)
	defer w.stop()

	w.Changed(context.Background(), "bower.json")

	require.Eventually(t, func() bool { return r.count("vendor") == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatchedDirectories(t *testing.T) {
	w := newWatcher(newFakeRunner(), &fakeNotifier{})

	assert.True(t, w.watched("app/new"))
	assert.True(t, w.watched("app/sass/includes"))
	assert.True(t, w.watched("bower_components/jquery"))
	assert.False(t, w.watched("node_modules"), "bower.json at the root does not watch every directory")
	assert.False(t, w.watched("node_modules/pkg/lib"))
	assert.False(t, w.watched("docs"))
}

func TestRebuildFailureKeepsWatching(t *testing.T) {
	r, n := newFakeRunner(), &fakeNotifier{}
	r.err = errors.New("boom")
	w := newWatcher(r, n)
	defer w.stop()

	ctx := context.Background()
	w.Changed(ctx, "app/js/a.js")
	require.Eventually(t, func() bool { return r.count("javascript") == 1 }, 2*time.Second, 5*time.Millisecond)

	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()

	w.Changed(ctx, "app/js/a.js")
	require.Eventually(t, func() bool { return r.count("javascript") == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(n.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestFailedTaskSendsNoEvent(t *testing.T) {
	n := &fakeNotifier{}
	runner := runnerFunc(func(_ context.Context, id string) ([]*models.TaskResult, error) {
		return []*models.TaskResult{{Task: id, Status: models.TaskFailed}}, nil
	})
	w := newWatcher(runner, n)

	w.rebuild(context.Background(), "javascript")
	assert.Empty(t, n.list())
}

type runnerFunc func(ctx context.Context, id string) ([]*models.TaskResult, error)

func (f runnerFunc) RunTask(ctx context.Context, id string) ([]*models.TaskResult, error) {
	return f(ctx, id)
}

func TestRunPicksUpFileSystemEvents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "js"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "js", "a.js"), []byte("var a;"), 0644))

	r, n := newFakeRunner(), &fakeNotifier{}
	w := New(config.DefaultConfig(), root, r, n, WithDebounce(10*time.Millisecond), WithLogger(discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "app", "js", "a.js"), []byte("var a = 1;"), 0644)
		return r.count("javascript") > 0
	}, 5*time.Second, 50*time.Millisecond)

	sub := filepath.Join(root, "app", "js", "lib")
	require.NoError(t, os.Mkdir(sub, 0755))
	before := r.count("javascript")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(sub, "c.js"), []byte("var c;"), 0644)
		return r.count("javascript") > before
	}, 5*time.Second, 50*time.Millisecond)

	assert.Zero(t, r.count("css"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
