// Package analysis runs the saved query battery against the applicant
// store and materializes the answers as JSON cards on disk.
package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Shape describes how a query's answer renders.
type Shape string

const (
	// ShapeScalar is a single value: the result set is exactly one row
	// with one column.
	ShapeScalar Shape = "scalar"
	// ShapeTable is anything wider or taller than a scalar.
	ShapeTable Shape = "table"
)

// Definition is one saved query, loaded from a YAML file in the
// queries directory.
type Definition struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Shape Shape  `yaml:"shape"`
	SQL   string `yaml:"sql"`
}

func (d Definition) validate(path string) error {
	if d.ID == "" {
		return fmt.Errorf("%s: missing id", path)
	}
	if d.Label == "" {
		return fmt.Errorf("%s: missing label", path)
	}
	if strings.TrimSpace(d.SQL) == "" {
		return fmt.Errorf("%s: missing sql", path)
	}
	switch d.Shape {
	case ShapeScalar, ShapeTable:
	case "":
		return fmt.Errorf("%s: missing shape", path)
	default:
		return fmt.Errorf("%s: unknown shape %q", path, d.Shape)
	}
	return nil
}

// LoadDefinitions reads every .yaml file in dir and returns the battery
// sorted by query id so runs have a stable order. Duplicate IDs are an
// error.
func LoadDefinitions(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read queries dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read query file: %w", err)
		}
		var def Definition
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := def.validate(path); err != nil {
			return nil, err
		}
		if prev, ok := seen[def.ID]; ok {
			return nil, fmt.Errorf("%s: duplicate query id %q (already defined in %s)", path, def.ID, prev)
		}
		seen[def.ID] = path
		defs = append(defs, def)
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("no query definitions found in %s", dir)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}
