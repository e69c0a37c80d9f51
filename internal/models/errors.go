package models

import (
	"errors"
	"fmt"
)

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// Invalid paths, unknown prerequisites, bad patterns, empty required
	// categories. Fatal before anything runs.
	ErrConfig ErrorType = "config_error"

	// Syntax errors from a compiler or minifier. Contained inside the task.
	ErrTransform ErrorType = "transform_error"

	// Unreadable sources, unwritable destinations. Fails the task.
	ErrIO ErrorType = "io_error"

	// Cyclic prerequisites. Fatal at graph construction.
	ErrCycle ErrorType = "cycle_error"
)

// BuildError carries a classified failure with enough context to locate it.
type BuildError struct {
	Type    ErrorType `json:"type"`
	Task    string    `json:"task,omitempty"`
	Path    string    `json:"path,omitempty"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *BuildError) Error() string {
	loc := e.Path
	if loc != "" && e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Task != "" && loc != "":
		return fmt.Sprintf("%s: %s: %s: %s", e.Type, e.Task, loc, msg)
	case e.Task != "":
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Task, msg)
	case loc != "":
		return fmt.Sprintf("%s: %s: %s", e.Type, loc, msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ConfigError returns a config_error with a formatted message.
func ConfigError(format string, args ...any) *BuildError {
	return &BuildError{Type: ErrConfig, Message: fmt.Sprintf(format, args...)}
}

// IOError wraps err as an io_error for path.
func IOError(task, path string, err error) *BuildError {
	return &BuildError{Type: ErrIO, Task: task, Path: path, Message: err.Error(), Err: err}
}

// TypeOf returns the ErrorType of the first BuildError in err's chain, or ""
// if there is none.
func TypeOf(err error) ErrorType {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Type
	}
	return ""
}
