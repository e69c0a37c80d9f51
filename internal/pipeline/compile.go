package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spachava753/sitebuild/internal/models"
)

// ErrCompilerUnavailable reports that a compiler could not be started. The
// compile step contains it like a syntax error.
var ErrCompilerUnavailable = errors.New("compiler unavailable")

// CompileRequest describes one stylesheet to compile.
type CompileRequest struct {
	// Path is the project relative source path.
	Path         string
	Contents     []byte
	IncludePaths []string
	Style        string
	// Command overrides the compiler executable.
	Command string
}

// Compiler turns a SASS or LESS stylesheet into CSS.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) ([]byte, error)
}

// CompileError is a syntax error reported by a compiler.
type CompileError struct {
	Path    string
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ExecCompiler runs lessc, feeding the source on stdin.
type ExecCompiler struct {
	// Command overrides the executable, which defaults to lessc.
	Command string
	// Dir is the working directory, normally the project root.
	Dir string
}

// NewExecCompiler creates an ExecCompiler running command in dir.
func NewExecCompiler(command, dir string) *ExecCompiler {
	return &ExecCompiler{Command: command, Dir: dir}
}

func (c *ExecCompiler) executable(req CompileRequest) string {
	if req.Command != "" {
		return req.Command
	}
	if c.Command != "" {
		return c.Command
	}
	return "lessc"
}

func (c *ExecCompiler) args(req CompileRequest) []string {
	includes := append([]string{path.Dir(req.Path)}, req.IncludePaths...)
	args := []string{"--no-color", "--include-path=" + strings.Join(includes, string(os.PathListSeparator))}
	if req.Style != "expanded" {
		args = append(args, "--compress")
	}
	return append(args, "-")
}

// Compile runs the compiler once for req.
func (c *ExecCompiler) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	exe := c.executable(req)
	cmd := exec.CommandContext(ctx, exe, c.args(req)...)
	cmd.Dir = c.Dir
	cmd.Stdin = bytes.NewReader(req.Contents)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, parseCompileError(req.Path, stderr.String())
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrCompilerUnavailable, err)
		}
		return nil, fmt.Errorf("running %s: %w", exe, err)
	}
	return stdout.Bytes(), nil
}

var lessLineRe = regexp.MustCompile(`on line (\d+)`)

func parseCompileError(p, stderr string) *CompileError {
	ce := &CompileError{Path: p}
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ce.Message = line
			break
		}
	}
	if ce.Message == "" {
		ce.Message = "compiler exited with an error"
	}
	if m := lessLineRe.FindStringSubmatch(stderr); m != nil {
		ce.Line, _ = strconv.Atoi(m[1])
	}
	return ce
}

// compiler returns the configured compiler for step. Without one, less runs
// lessc and sass starts a DartSass that the caller must close.
func (st *state) compiler(step models.Step) (Compiler, func()) {
	if c, ok := st.task.opts.Compilers[step.Compiler]; ok {
		return c, func() {}
	}
	if step.Compiler == "less" {
		return NewExecCompiler("", st.task.opts.Root), func() {}
	}
	ds := NewDartSass(st.task.opts.Root, st.logger)
	return ds, func() {
		if err := ds.Close(); err != nil {
			st.logger.Warn("stopping sass", "error", err)
		}
	}
}

// compile turns every non-partial stylesheet into CSS. Any syntax error
// empties the step's output.
func (st *state) compile(ctx context.Context, step models.Step) error {
	c, done := st.compiler(step)
	defer done()

	var out []*File
	for _, f := range st.files {
		if strings.HasPrefix(path.Base(f.Path), "_") {
			continue
		}
		css, err := c.Compile(ctx, CompileRequest{
			Path:         f.Source,
			Contents:     f.Contents,
			IncludePaths: step.IncludePaths,
			Style:        step.Style,
			Command:      step.Command,
		})
		if err != nil {
			var ce *CompileError
			if !errors.As(err, &ce) && !errors.Is(err, ErrCompilerUnavailable) {
				return &models.BuildError{Type: models.ErrIO, Task: st.task.cat.Name, Path: f.Source, Message: err.Error(), Err: err}
			}
			st.contain(f, 0, err)
			continue
		}
		f.Path = strings.TrimSuffix(f.Path, filepath.Ext(f.Path)) + ".css"
		f.Contents = css
		st.resetMap(f)
		out = append(out, f)
	}
	st.files = out
	return nil
}
