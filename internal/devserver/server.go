// Package devserver serves the build output with live reload.
package devserver

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	prefix      = "/__sitebuild"
	ClientPath  = prefix + "/client.js"
	EventsPath  = prefix + "/events"
	MetricsPath = prefix + "/metrics"

	shutdownTimeout = 5 * time.Second
)

//go:embed client.js
var clientJS []byte

var clientTag = []byte(`<script src="` + ClientPath + `"></script>`)

// Server serves a directory and pushes reload events from a Hub.
type Server struct {
	addr     string
	dir      string
	hub      *Hub
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer exposes g on the metrics endpoint.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server for the files under dir.
func New(addr, dir string, hub *Hub, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		dir:      dir,
		hub:      hub,
		gatherer: prometheus.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	r.GET(EventsPath, s.events)
	r.GET(ClientPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", clientJS)
	})
	r.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.NoRoute(s.static)
	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("dev server listening", "url", "http://"+ln.Addr().String()+"/")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dev server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown disconnects reload clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.logger.Debug("shutting down dev server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("dev server shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

// events streams reload events until the client leaves or the hub closes.
func (s *Server) events(c *gin.Context) {
	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("connected", "ok")
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// static serves files below dir. HTML documents get the reload client.
func (s *Server) static(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	rel := path.Clean("/" + c.Request.URL.Path)[1:]
	full := filepath.Join(s.dir, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		c.String(http.StatusNotFound, "404 page not found")
		return
	}

	c.Header("Cache-Control", "no-store")
	if !strings.EqualFold(filepath.Ext(full), ".html") {
		c.File(full)
		return
	}

	doc, err := os.ReadFile(full)
	if err != nil {
		s.logger.Warn("failed to read document", "path", rel, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", InjectClient(doc))
}

// InjectClient inserts the reload client script before the last </body>, or
// appends it when the document has none.
func InjectClient(doc []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if i < 0 {
		return append(append([]byte(nil), doc...), clientTag...)
	}
	out := make([]byte, 0, len(doc)+len(clientTag))
	out = append(out, doc[:i]...)
	out = append(out, clientTag...)
	return append(out, doc[i:]...)
}
