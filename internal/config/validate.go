package config

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/spachava753/sitebuild/internal/fileset"
	"github.com/spachava753/sitebuild/internal/models"
	"github.com/spachava753/sitebuild/internal/util"
)

var stepKinds = []models.StepKind{
	models.StepCompile,
	models.StepPurge,
	models.StepConcat,
	models.StepMinify,
	models.StepSourcemap,
	models.StepOptimize,
	models.StepInject,
}

// Validate checks the configuration and returns every problem found, joined.
// Prerequisite cycles are left to graph construction.
func Validate(cfg models.Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, models.ConfigError(format, args...))
	}

	if cfg.DestRoot == "" || path.IsAbs(cfg.DestRoot) || strings.HasPrefix(path.Clean(cfg.DestRoot), "..") || path.Clean(cfg.DestRoot) == "." {
		add("dest_root %q must be a relative directory inside the project", cfg.DestRoot)
	}
	if cfg.Concurrency < 0 {
		add("concurrency must not be negative")
	}
	if d, err := time.ParseDuration(cfg.Server.Debounce); err != nil || d <= 0 {
		add("server.debounce %q is not a positive duration", cfg.Server.Debounce)
	}

	enabled := cfg.Enabled()
	if len(enabled) == 0 {
		add("no enabled categories")
	}

	names := make([]string, 0, len(cfg.Categories))
	for name := range cfg.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cat := cfg.Categories[name]
		if cat.Disabled {
			continue
		}
		if len(cat.Source) == 0 || len(cat.Includes()) == 0 {
			add("category %s: source must contain at least one pattern", name)
		}
		if err := fileset.Validate(cat.Source); err != nil {
			add("category %s: %v", name, err)
		}
		if cat.Dest == "" {
			add("category %s: dest must not be empty", name)
		} else if !within(cfg.DestRoot, cat.Dest) {
			add("category %s: dest %q is outside dest_root %q", name, cat.Dest, cfg.DestRoot)
		}
		for _, dep := range cat.DependsOn {
			if _, ok := cfg.Categories[dep]; !ok {
				add("category %s: depends on unknown category %q", name, dep)
			}
		}
		for _, also := range cat.Also {
			if _, ok := cfg.Categories[also]; !ok {
				add("category %s: also re-runs unknown category %q", name, also)
			}
		}
		for i, step := range cat.Steps {
			if err := validateStep(step); err != nil {
				add("category %s: step %d: %v", name, i, err)
			}
		}
	}

	errs = append(errs, checkDestinations(enabled)...)

	return errors.Join(errs...)
}

func validateStep(step models.Step) error {
	if !slices.Contains(stepKinds, step.Kind) {
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
	switch step.Kind {
	case models.StepCompile:
		if step.Compiler != "sass" && step.Compiler != "less" {
			return fmt.Errorf("compile: unknown compiler %q", step.Compiler)
		}
		if step.Style != "" && step.Style != "compressed" && step.Style != "expanded" {
			return fmt.Errorf("compile: unknown style %q", step.Style)
		}
	case models.StepConcat:
		if step.Output == "" || strings.Contains(step.Output, "/") {
			return fmt.Errorf("concat: output must be a plain file name, got %q", step.Output)
		}
	case models.StepPurge:
		if len(step.HTML) == 0 {
			return fmt.Errorf("purge: html patterns must not be empty")
		}
		if err := fileset.Validate(step.HTML); err != nil {
			return fmt.Errorf("purge: %w", err)
		}
	case models.StepOptimize:
		if _, err := util.ParseSize(step.MaxSize); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
	}
	return nil
}

// checkDestinations rejects categories whose outputs could land on the same
// path. Concatenating categories own one file, dest/output. Per-file
// categories sharing a directory must select disjoint file names.
func checkDestinations(enabled map[string]models.Category) []error {
	var errs []error

	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make(map[string]string)
	for _, name := range names {
		cat := enabled[name]
		target := cat.Target()
		if target == "" {
			continue
		}
		key := path.Join(cat.Dest, target)
		if other, ok := targets[key]; ok {
			errs = append(errs, models.ConfigError("categories %s and %s both write %s", other, name, key))
			continue
		}
		targets[key] = name
	}

	for i, a := range names {
		ca := enabled[a]
		if ca.Target() != "" {
			continue
		}
		for _, b := range names[i+1:] {
			cb := enabled[b]
			if cb.Target() != "" || path.Clean(ca.Dest) != path.Clean(cb.Dest) {
				continue
			}
			if namesOverlap(ca, cb) {
				errs = append(errs, models.ConfigError("categories %s and %s share dest %s with overlapping file names", a, b, ca.Dest))
			}
		}
	}
	return errs
}

func namesOverlap(a, b models.Category) bool {
	for _, pa := range a.Includes() {
		for _, pb := range b.Includes() {
			na, nb := path.Base(pa), path.Base(pb)
			if na == "**" || nb == "**" {
				return true
			}
			if ok, _ := doublestar.Match(na, nb); ok {
				return true
			}
			if ok, _ := doublestar.Match(nb, na); ok {
				return true
			}
		}
	}
	return false
}

func within(root, dest string) bool {
	root, dest = path.Clean(root), path.Clean(dest)
	return dest == root || strings.HasPrefix(dest, root+"/")
}
