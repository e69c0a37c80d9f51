// Package bower resolves the main files of installed bower packages, in
// dependency order, the way main-bower-files does.
package bower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spachava753/sitebuild/internal/fileset"
	"github.com/spachava753/sitebuild/internal/models"
)

// packageManifests are tried in order inside each installed package.
var packageManifests = []string{"bower.json", ".bower.json"}

// Resolver reads the project manifest and the installed package tree.
type Resolver struct {
	fsys       fs.FS
	dir        string
	manifest   string
	includeDev bool
}

// NewResolver creates a Resolver over fsys, which should be rooted at the
// project directory.
func NewResolver(fsys fs.FS, cfg models.BowerConfig) *Resolver {
	return &Resolver{
		fsys:       fsys,
		dir:        cfg.Dir,
		manifest:   cfg.Manifest,
		includeDev: cfg.IncludeDev,
	}
}

// Resolve returns the vendor files, relative to the bower directory, with
// every package's files listed after the files of the packages it depends on.
// A project without a manifest has no vendor files.
func (r *Resolver) Resolve(ctx context.Context) (models.VendorFileList, error) {
	project, err := LoadManifest(r.fsys, r.manifest)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no bower manifest, vendor list is empty", "path", r.manifest)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	roots := append(Deps{}, project.Dependencies...)
	if r.includeDev {
		roots = append(roots, project.DevDependencies...)
	}

	packages, err := r.loadTree(ctx, roots, project.Overrides)
	if err != nil {
		return nil, err
	}

	var files models.VendorFileList
	seen := make(map[string]bool)
	for _, name := range order(roots, packages) {
		pkg := packages[name]
		main := pkg.Main
		if o, ok := project.Overrides[name]; ok {
			if o.Ignore {
				slog.Debug("ignoring vendor package", "package", name)
				continue
			}
			if len(o.Main) > 0 {
				main = o.Main
			}
		}
		if len(main) == 0 {
			slog.Debug("vendor package declares no main files", "package", name)
			continue
		}

		matched, err := r.mainFiles(name, main)
		if err != nil {
			return nil, err
		}
		for _, f := range matched {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}

	slog.Debug("resolved vendor files", "packages", len(packages), "files", len(files))
	return files, nil
}

// loadTree loads every package reachable from roots, one dependency level at
// a time, reading each level's manifests in parallel.
func (r *Resolver) loadTree(ctx context.Context, roots Deps, overrides map[string]Override) (map[string]*Manifest, error) {
	packages := make(map[string]*Manifest)
	var mu sync.Mutex

	level := unique(roots)
	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, name := range level {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, err := r.loadPackage(name)
				if err != nil {
					return err
				}
				if o, ok := overrides[name]; ok && o.Dependencies != nil {
					m.Dependencies = *o.Dependencies
				}
				mu.Lock()
				packages[name] = m
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, name := range level {
			for _, dep := range packages[name].Dependencies {
				if _, ok := packages[dep]; !ok {
					next = append(next, dep)
				}
			}
		}
		level = unique(next)
	}

	return packages, nil
}

func (r *Resolver) loadPackage(name string) (*Manifest, error) {
	pkgDir := path.Join(r.dir, name)
	if _, err := fs.Stat(r.fsys, pkgDir); err != nil {
		return nil, models.ConfigError("vendor package %q is not installed in %s", name, r.dir)
	}

	for _, candidate := range packageManifests {
		m, err := LoadManifest(r.fsys, path.Join(pkgDir, candidate))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if m.Name == "" {
			m.Name = name
		}
		return m, nil
	}

	slog.Debug("vendor package has no manifest", "package", name)
	return &Manifest{Name: name}, nil
}

// mainFiles expands a package's main entries, which may be globs, relative
// to the package directory.
func (r *Resolver) mainFiles(name string, main Files) ([]string, error) {
	pkgDir := path.Join(r.dir, name)
	var out []string
	for _, entry := range main {
		pattern := path.Join(pkgDir, path.Clean("/" + entry)[1:])
		matches, err := fileset.Expand(r.fsys, []string{pattern})
		if err != nil {
			return nil, models.ConfigError("vendor package %q: %v", name, err)
		}
		if len(matches) == 0 {
			slog.Warn("vendor main file not found", "package", name, "main", entry)
			continue
		}
		for _, m := range matches {
			out = append(out, strings.TrimPrefix(m.Path, r.dir+"/"))
		}
	}
	return out, nil
}

// LoadManifest reads and parses a bower.json file.
func LoadManifest(fsys fs.FS, name string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading bower manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, models.ConfigError("parsing bower manifest %s: %v", name, err)
	}
	return &m, nil
}

// order lists packages so that each comes after its dependencies, visiting
// roots and dependencies in declaration order. Cycles are broken at the
// first revisit.
func order(roots Deps, packages map[string]*Manifest) []string {
	var out []string
	state := make(map[string]int) // 1 visiting, 2 done

	var visit func(name string)
	visit = func(name string) {
		if state[name] != 0 {
			return
		}
		state[name] = 1
		if pkg, ok := packages[name]; ok {
			for _, dep := range pkg.Dependencies {
				visit(dep)
			}
		}
		state[name] = 2
		out = append(out, name)
	}

	for _, name := range roots {
		visit(name)
	}
	return out
}

func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
