package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spachava753/sitebuild/internal/config"
	"github.com/spachava753/sitebuild/internal/devserver"
	"github.com/spachava753/sitebuild/internal/logging"
	"github.com/spachava753/sitebuild/internal/models"
	"github.com/spachava753/sitebuild/internal/site"
	"github.com/spachava753/sitebuild/internal/watch"
)

var errBuildFailed = errors.New("build failed")

type globalFlags struct {
	config    string
	root      string
	logLevel  string
	logFormat string
}

func newRootCommand() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:           "sitebuild",
		Short:         "Build, watch and serve a static front-end project",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.config, "config", "c", "", "path to sitebuild.yaml or sitebuild.toml (default: looked up in --root)")
	flags.StringVar(&g.root, "root", ".", "project root directory")
	flags.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&g.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(newBuildCommand(&g))
	cmd.AddCommand(newWatchCommand(&g))
	cmd.AddCommand(newCleanCommand(&g))
	return cmd
}

// load sets up logging and returns the configured site.
func load(cmd *cobra.Command, g *globalFlags) (*site.Site, *slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:  g.logLevel,
		Format: g.logFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	root, err := filepath.Abs(g.root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving root: %w", err)
	}
	cfg, err := config.LoadOrDefault(root, g.config)
	if err != nil {
		return nil, nil, err
	}
	s, err := site.New(cfg, root, site.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return s, logger, nil
}

func newBuildCommand(g *globalFlags) *cobra.Command {
	var clean bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run every task once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, logger, err := load(cmd, g)
			if err != nil {
				return err
			}
			defer closeSite(s, logger)
			if clean {
				if err := s.Clean(); err != nil {
					return err
				}
			}
			res, err := s.Build(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			if res.Failed() {
				return errBuildFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "delete the destination root before building")
	return cmd
}

func newWatchCommand(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build once, then serve the output and rebuild on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, logger, err := load(cmd, g)
			if err != nil {
				return err
			}
			defer closeSite(s, logger)
			if addr == "" {
				addr = s.Config.Server.Addr
			}
			ctx := cmd.Context()

			res, err := s.Build(ctx)
			if err != nil {
				return err
			}
			if res.Failed() {
				logger.Warn("initial build failed, watching anyway")
			}

			hub := devserver.NewHub(16, logger)
			srv := devserver.New(addr, filepath.Join(s.Root, s.Config.DestRoot), hub,
				devserver.WithGatherer(s.Registry),
				devserver.WithLogger(logger))
			if err := srv.Start(); err != nil {
				return err
			}
			defer func() {
				if err := srv.Shutdown(context.Background()); err != nil {
					logger.Warn("dev server shutdown failed", "error", err)
				}
			}()

			w := watch.New(s.Config, s.Root, s.Runner, hub,
				watch.WithDebounce(config.Debounce(s.Config)),
				watch.WithLogger(logger))
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "dev server listen address (default from config, "+config.DefaultAddr+")")
	return cmd
}

func newCleanCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the destination root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := load(cmd, g)
			if err != nil {
				return err
			}
			return s.Clean()
		},
	}
}

func closeSite(s *site.Site, logger *slog.Logger) {
	if err := s.Close(); err != nil {
		logger.Warn("stopping compilers failed", "error", err)
	}
}

func printSummary(w io.Writer, res *models.BuildResult) {
	ids := make([]string, 0, len(res.Tasks))
	for id := range res.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(w)
	for _, id := range ids {
		t := res.Tasks[id]
		fmt.Fprintf(w, "%-14s %-9s %3d files  %.2fs\n", id, t.Status, len(t.Written), t.DurationSec)
		for _, e := range t.Errors {
			fmt.Fprintf(w, "  %v\n", e)
		}
		if t.SkippedBy != "" {
			fmt.Fprintf(w, "  skipped: %s did not complete\n", t.SkippedBy)
		}
	}
	fmt.Fprintf(w, "Succeeded: %d\n", res.Count(models.TaskSucceeded))
	fmt.Fprintf(w, "Degraded: %d\n", res.Count(models.TaskDegraded))
	fmt.Fprintf(w, "Failed: %d\n", res.Count(models.TaskFailed))
	fmt.Fprintf(w, "Skipped: %d\n", res.Count(models.TaskSkipped))
	fmt.Fprintf(w, "Duration: %.2fs\n", res.TotalDurationSec)
}
