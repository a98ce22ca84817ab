// Package harness runs declarative render scenarios: a template, an
// initial data context, and a sequence of data patches. Each step's
// rendered tree is captured into a trace and compared against golden
// files, so directive and binding regressions show up as readable diffs.
package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines one render conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Template is the markup source to mount.
	Template string `yaml:"template"`

	// Data is the initial data context.
	Data map[string]any `yaml:"data,omitempty"`

	// Includes maps include source references to their markup, served to
	// the runtime by an in-memory fetcher.
	Includes map[string]string `yaml:"includes,omitempty"`

	// Steps are applied in order after the initial render.
	Steps []Step `yaml:"steps,omitempty"`
}

// Step is one data mutation applied to a mounted scenario.
type Step struct {
	// Name labels the step in the trace. Defaults to its position.
	Name string `yaml:"name,omitempty"`

	// Patch is merged into the data context via SetData.
	Patch map[string]any `yaml:"patch,omitempty"`

	// Set writes a single deep path. Ignored when Patch is present.
	Set *PathWrite `yaml:"set,omitempty"`
}

// PathWrite is a single deep write into the data context.
type PathWrite struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// LoadScenario reads one scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	if s.Template == "" {
		return nil, fmt.Errorf("scenario %s has no template", path)
	}
	return &s, nil
}

// LoadScenarios reads every *.yaml scenario under dir, sorted by file
// name so test order is stable.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
