package devserver

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/sitebuild/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(4, discard)
	a, unsubA := hub.Subscribe()
	b, unsubB := hub.Subscribe()
	defer unsubB()
	assert.Equal(t, 2, hub.Clients())

	ev := models.NewReloadEvent("css", []string{"css/x.css"})
	hub.Notify(ev)
	assert.Equal(t, ev, <-a)
	assert.Equal(t, ev, <-b)

	unsubA()
	unsubA()
	assert.Equal(t, 1, hub.Clients())
	_, ok := <-a
	assert.False(t, ok)
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := NewHub(1, discard)
	slow, unsub := hub.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Notify(models.ReloadEvent{Category: "js", Kind: models.ReloadPage})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Len(t, slow, 1)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(1, discard)
	ch, unsub := hub.Subscribe()
	hub.Close()
	hub.Close()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, hub.Clients())

	late, _ := hub.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestInjectClient(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "before body end",
			doc:  "<html><body><p>hi</p></body></html>",
			want: `<html><body><p>hi</p><script src="/__sitebuild/client.js"></script></body></html>`,
		},
		{
			name: "upper case tag",
			doc:  "<BODY>x</BODY>",
			want: `<BODY>x<script src="/__sitebuild/client.js"></script></BODY>`,
		},
		{
			name: "no body",
			doc:  "<p>fragment</p>",
			want: `<p>fragment</p><script src="/__sitebuild/client.js"></script>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(InjectClient([]byte(tt.doc))))
		})
	}
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html><body>home</body></html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "index.html"), []byte("<html><body>docs</body></html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "x.css"), []byte("body{margin:0}"), 0644))
	return New("127.0.0.1:0", dir, NewHub(8, discard), WithLogger(discard)), dir
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStaticFiles(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, `<html><body>home<script src="/__sitebuild/client.js"></script></body></html>`, rec.Body.String())

	rec = get(t, h, "/docs/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docs<script")

	rec = get(t, h, "/css/x.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.Equal(t, "body{margin:0}", rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing.js").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/css").Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index.html", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStaticStaysInsideRoot(t *testing.T) {
	s, dir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("secret"), 0644))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/../secret.txt"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClientScript(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), ClientPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), EventsPath)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "sitebuild_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New("127.0.0.1:0", t.TempDir(), NewHub(1, discard), WithGatherer(reg), WithLogger(discard))
	rec := get(t, s.Handler(), MetricsPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitebuild_test_total 1")
}

func TestEventsStream(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+EventsPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.hub.Notify(models.NewReloadEvent("css", []string{"css/x.css", "css/x.css.map"}))

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var event, data string
	timeout := time.After(5 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			if strings.HasPrefix(line, "event:") {
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
			if strings.HasPrefix(line, "data:") && event == "inject" {
				data = line
			}
		case <-timeout:
			t.Fatal("no inject event received")
		}
	}
	assert.Contains(t, data, `"category":"css"`)
	assert.Contains(t, data, `"css/x.css"`)
}

func TestStartAndShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start())

	base := "http://" + s.Addr()
	resp, err := http.Get(base + "/css/x.css")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stream, err := http.Get(base + EventsPath)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, s.hub.Clients())
}
