package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
)

// DefaultSassBinary is the Dart Sass executable started in embedded mode.
const DefaultSassBinary = "sass"

// DartSass compiles SASS and SCSS through the Dart Sass embedded protocol.
// One compiler process is started per executable on first use and reused
// until Close.
type DartSass struct {
	// Dir is the project root. Relative include paths resolve against it.
	Dir    string
	logger *slog.Logger

	mu          sync.Mutex
	transpilers map[string]*godartsass.Transpiler
}

// NewDartSass creates a DartSass rooted at dir.
func NewDartSass(dir string, logger *slog.Logger) *DartSass {
	if logger == nil {
		logger = slog.Default()
	}
	return &DartSass{Dir: dir, logger: logger, transpilers: make(map[string]*godartsass.Transpiler)}
}

func (d *DartSass) transpiler(binary string) (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.transpilers[binary]; ok && !t.IsShutDown() {
		return t, nil
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: binary,
		LogEventHandler: func(e godartsass.LogEvent) {
			if e.Type == godartsass.LogEventTypeDebug {
				d.logger.Debug("sass", "message", e.Message)
				return
			}
			d.logger.Warn("sass", "message", e.Message)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrCompilerUnavailable, binary, err)
	}
	d.transpilers[binary] = t
	return t, nil
}

// drop closes the transpiler for binary so the next compile starts a fresh
// process.
func (d *DartSass) drop(binary string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.transpilers[binary]; ok {
		_ = t.Close()
		delete(d.transpilers, binary)
	}
}

func (d *DartSass) abs(p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.Dir, p)
}

func (d *DartSass) args(req CompileRequest) godartsass.Args {
	style := godartsass.OutputStyleCompressed
	if req.Style == "expanded" {
		style = godartsass.OutputStyleExpanded
	}
	syntax := godartsass.SourceSyntaxSCSS
	if strings.HasSuffix(req.Path, ".sass") {
		syntax = godartsass.SourceSyntaxSASS
	}

	includes := []string{d.abs(path.Dir(req.Path))}
	for _, p := range req.IncludePaths {
		includes = append(includes, d.abs(p))
	}

	src := (&url.URL{Scheme: "file", Path: filepath.ToSlash(d.abs(req.Path))}).String()
	return godartsass.Args{
		Source:       string(req.Contents),
		URL:          src,
		OutputStyle:  style,
		SourceSyntax: syntax,
		IncludePaths: includes,
	}
}

// Compile compiles req. Syntax errors are returned as *CompileError; a
// missing or broken executable wraps ErrCompilerUnavailable.
func (d *DartSass) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	binary := req.Command
	if binary == "" {
		binary = DefaultSassBinary
	}
	t, err := d.transpiler(binary)
	if err != nil {
		return nil, err
	}

	args := d.args(req)
	res, err := t.Execute(args)
	if err != nil {
		var se godartsass.SassError
		if errors.As(err, &se) {
			return nil, sassCompileError(req, args.URL, se)
		}
		d.drop(binary)
		return nil, fmt.Errorf("%w: %s: %v", ErrCompilerUnavailable, binary, err)
	}
	return []byte(res.CSS), nil
}

// Close stops every compiler process.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for binary, t := range d.transpilers {
		if err := t.Close(); err != nil && !errors.Is(err, godartsass.ErrShutdown) {
			errs = append(errs, fmt.Errorf("closing %s: %w", binary, err))
		}
		delete(d.transpilers, binary)
	}
	return errors.Join(errs...)
}

// sassCompileError maps a Dart Sass failure onto the source line. Errors
// raised inside an imported file keep that file's URL in the message.
func sassCompileError(req CompileRequest, src string, se godartsass.SassError) *CompileError {
	ce := &CompileError{Path: req.Path, Message: se.Message}
	if se.Span.Url != "" && se.Span.Url != src {
		ce.Message = fmt.Sprintf("%s (in %s)", se.Message, se.Span.Url)
		return ce
	}
	ce.Line = lineAt(req.Contents, se.Span.Start.Offset)
	return ce
}

// lineAt returns the 1-based line holding byte offset in src.
func lineAt(src []byte, offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(src) {
		offset = len(src)
	}
	return bytes.Count(src[:offset], []byte("\n")) + 1
}
