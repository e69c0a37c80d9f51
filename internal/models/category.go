package models

import "strings"

// StepKind names a transformation applied to a category's file set.
type StepKind string

const (
	StepCompile   StepKind = "compile"
	StepPurge     StepKind = "purge"
	StepConcat    StepKind = "concat"
	StepMinify    StepKind = "minify"
	StepSourcemap StepKind = "sourcemap"
	StepOptimize  StepKind = "optimize"
	StepInject    StepKind = "inject"
)

// Category describes one asset category: where its sources live, where its
// output goes and which steps turn one into the other.
type Category struct {
	Name      string   `yaml:"-" toml:"-" json:"name"`
	Source    []string `yaml:"source" toml:"source" json:"source"`
	Dest      string   `yaml:"dest" toml:"dest" json:"dest"`
	Steps     []Step   `yaml:"steps,omitempty" toml:"steps,omitempty" json:"steps,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty" toml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Also      []string `yaml:"also,omitempty" toml:"also,omitempty" json:"also,omitempty"`
	Vendor    bool     `yaml:"vendor,omitempty" toml:"vendor,omitempty" json:"vendor,omitempty"`
	Required  bool     `yaml:"required,omitempty" toml:"required,omitempty" json:"required,omitempty"`
	Disabled  bool     `yaml:"disabled,omitempty" toml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Step is one entry of a category's pipeline. Only the options relevant to
// Kind are read.
type Step struct {
	Kind StepKind `yaml:"kind" toml:"kind" json:"kind"`

	// compile
	Compiler     string   `yaml:"compiler,omitempty" toml:"compiler,omitempty" json:"compiler,omitempty"`
	Style        string   `yaml:"style,omitempty" toml:"style,omitempty" json:"style,omitempty"`
	IncludePaths []string `yaml:"include_paths,omitempty" toml:"include_paths,omitempty" json:"include_paths,omitempty"`
	Command      string   `yaml:"command,omitempty" toml:"command,omitempty" json:"command,omitempty"`

	// purge
	HTML []string `yaml:"html,omitempty" toml:"html,omitempty" json:"html,omitempty"`
	Keep []string `yaml:"keep,omitempty" toml:"keep,omitempty" json:"keep,omitempty"`

	// concat
	Output string `yaml:"output,omitempty" toml:"output,omitempty" json:"output,omitempty"`

	// sourcemap
	Inline bool `yaml:"inline,omitempty" toml:"inline,omitempty" json:"inline,omitempty"`

	// optimize
	MaxSize string `yaml:"max_size,omitempty" toml:"max_size,omitempty" json:"max_size,omitempty"`

	// inject
	Prefix string `yaml:"prefix,omitempty" toml:"prefix,omitempty" json:"prefix,omitempty"`
	Anchor string `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
}

// Includes returns the positive source patterns.
func (c Category) Includes() []string {
	var out []string
	for _, p := range c.Source {
		if !strings.HasPrefix(p, "!") {
			out = append(out, p)
		}
	}
	return out
}

// Excludes returns the negated source patterns without their leading '!'.
func (c Category) Excludes() []string {
	var out []string
	for _, p := range c.Source {
		if rest, ok := strings.CutPrefix(p, "!"); ok {
			out = append(out, rest)
		}
	}
	return out
}

// Target returns the single output file name when the category concatenates
// its inputs, or "" for per-file categories.
func (c Category) Target() string {
	for _, s := range c.Steps {
		if s.Kind == StepConcat {
			return s.Output
		}
	}
	return ""
}

// HasStep reports whether the category declares a step of the given kind.
func (c Category) HasStep(kind StepKind) bool {
	for _, s := range c.Steps {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// VendorFileList is the ordered list of vendor files, relative to the bower
// directory, that the project depends on.
type VendorFileList []string
