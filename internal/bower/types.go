package bower

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Manifest is the subset of bower.json read during resolution.
type Manifest struct {
	Name            string              `json:"name"`
	Main            Files               `json:"main"`
	Dependencies    Deps                `json:"dependencies"`
	DevDependencies Deps                `json:"devDependencies"`
	Overrides       map[string]Override `json:"overrides"`
}

// Override replaces what a package declares about itself. It is read from
// the project manifest.
type Override struct {
	Main         Files `json:"main"`
	Dependencies *Deps `json:"dependencies"`
	Ignore       bool  `json:"ignore"`
}

// Files is bower's "main" field: a single path or a list of paths, either of
// which may be a glob.
type Files []string

func (f *Files) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = Files{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("main must be a string or a list of strings: %w", err)
	}
	*f = list
	return nil
}

// Deps is a dependency object whose key order is preserved, since it
// decides injection order.
type Deps []string

func (d *Deps) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("dependencies must be an object")
	}
	var names []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected dependency key %v", tok)
		}
		var version json.RawMessage
		if err := dec.Decode(&version); err != nil {
			return fmt.Errorf("dependency %s: %w", name, err)
		}
		names = append(names, name)
	}
	*d = names
	return nil
}

func isNull(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "null"
}
