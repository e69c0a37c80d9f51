package models

// Config is the parsed sitebuild.yaml (or sitebuild.toml) configuration.
type Config struct {
	DestRoot    string              `yaml:"dest_root" toml:"dest_root" json:"dest_root"`
	Concurrency int                 `yaml:"concurrency" toml:"concurrency" json:"concurrency"`
	Bower       BowerConfig         `yaml:"bower" toml:"bower" json:"bower"`
	Server      ServerConfig        `yaml:"server" toml:"server" json:"server"`
	Categories  map[string]Category `yaml:"categories" toml:"categories" json:"categories"`
}

type BowerConfig struct {
	Dir        string `yaml:"dir" toml:"dir" json:"dir"`
	Manifest   string `yaml:"manifest" toml:"manifest" json:"manifest"`
	IncludeDev bool   `yaml:"include_dev" toml:"include_dev" json:"include_dev"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr" toml:"addr" json:"addr"`
	Debounce string `yaml:"debounce" toml:"debounce" json:"debounce"`
}

// Enabled returns the enabled categories keyed by name, with Name populated.
func (c Config) Enabled() map[string]Category {
	out := make(map[string]Category, len(c.Categories))
	for name, cat := range c.Categories {
		if cat.Disabled {
			continue
		}
		cat.Name = name
		out[name] = cat
	}
	return out
}
