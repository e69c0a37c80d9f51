// Package logging builds the process logger: a charmbracelet/log handler
// behind log/slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Options select level, format and destination.
type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is text or json.
	Format string
	Output io.Writer
}

// DefaultOptions returns info-level text logs on stderr.
func DefaultOptions() Options {
	return Options{Level: "info", Format: "text", Output: os.Stderr}
}

// New creates a slog.Logger from opts.
func New(opts Options) (*slog.Logger, error) {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	level := charmlog.InfoLevel
	if opts.Level != "" {
		l, err := charmlog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q", opts.Level)
		}
		level = l
	}

	handler := charmlog.NewWithOptions(opts.Output, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           level,
	})
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handler.SetFormatter(charmlog.TextFormatter)
	case "json":
		handler.SetFormatter(charmlog.JSONFormatter)
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", opts.Format)
	}
	return slog.New(handler), nil
}
