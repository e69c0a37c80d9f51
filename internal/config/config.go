// Package config loads and validates the sitebuild pipeline configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/spachava753/sitebuild/internal/models"
)

// FileNames are the configuration files looked up in the project root, in
// order of preference.
var FileNames = []string{"sitebuild.yaml", "sitebuild.yml", "sitebuild.toml"}

// Find returns the first configuration file present in root, or "" if the
// project has none.
func Find(root string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(root, name)
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
	}
	return "", nil
}

// Load parses a sitebuild.yaml or sitebuild.toml file. Keys set for a
// category are decoded on top of the default category of the same name, so
// `less: {disabled: false}` keeps every other default of less. Everything
// else falls back to DefaultConfig.
func Load(path string) (models.Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	defaults := cfg.Categories
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = decodeTOML(data, &cfg, defaults)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg, defaults)
	default:
		return cfg, models.ConfigError("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, models.ConfigError("parsing %s: %v", path, err)
	}

	applyDefaults(&cfg)
	slog.Debug("loaded config", "path", path, "categories", len(cfg.Categories))

	return cfg, nil
}

// decodeYAML decodes data into cfg, then decodes each category again on top
// of its default so unset keys keep their default values.
func decodeYAML(data []byte, cfg *models.Config, defaults map[string]models.Category) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	var raw struct {
		Categories map[string]yaml.Node `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, node := range raw.Categories {
		cat := defaults[name]
		if err := node.Decode(&cat); err != nil {
			return fmt.Errorf("category %s: %w", name, err)
		}
		cfg.Categories[name] = cat
	}
	return nil
}

// decodeTOML is decodeYAML for TOML, using primitives for the deferred
// category decoding.
func decodeTOML(data []byte, cfg *models.Config, defaults map[string]models.Category) error {
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return err
	}
	var raw struct {
		Categories map[string]toml.Primitive `toml:"categories"`
	}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return err
	}
	for name, prim := range raw.Categories {
		cat := defaults[name]
		if md.IsDefined("categories", name, "steps") {
			// array tables decode into existing elements
			cat.Steps = nil
		}
		if err := md.PrimitiveDecode(prim, &cat); err != nil {
			return fmt.Errorf("category %s: %w", name, err)
		}
		cfg.Categories[name] = cat
	}
	return nil
}

// LoadOrDefault loads explicit if set, otherwise the first configuration file
// found in root, otherwise the default configuration. The result is validated.
func LoadOrDefault(root, explicit string) (models.Config, error) {
	path := explicit
	if path == "" {
		found, err := Find(root)
		if err != nil {
			return models.Config{}, err
		}
		path = found
	}

	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return cfg, err
		}
	} else {
		slog.Debug("no config file found, using defaults", "root", root)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Debounce returns the parsed watcher debounce window.
func Debounce(cfg models.Config) time.Duration {
	d, err := time.ParseDuration(cfg.Server.Debounce)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultDebounce)
	}
	return d
}

func applyDefaults(cfg *models.Config) {
	if cfg.DestRoot == "" {
		cfg.DestRoot = DefaultDestRoot
	}
	if cfg.Bower.Dir == "" {
		cfg.Bower.Dir = DefaultBowerDir
	}
	if cfg.Bower.Manifest == "" {
		cfg.Bower.Manifest = "bower.json"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.Debounce == "" {
		cfg.Server.Debounce = DefaultDebounce
	}
	for name, cat := range cfg.Categories {
		for i, step := range cat.Steps {
			if step.Kind == models.StepInject {
				if step.Anchor == "" {
					step.Anchor = "bower"
				}
				if step.Prefix == "" {
					step.Prefix = "lib"
				}
			}
			if step.Kind == models.StepCompile && step.Style == "" && step.Compiler == "sass" {
				step.Style = "compressed"
			}
			cat.Steps[i] = step
		}
		cfg.Categories[name] = cat
	}
}
