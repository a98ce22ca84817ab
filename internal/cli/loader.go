package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohler55/ojg/oj"
	"gopkg.in/yaml.v3"

	"github.com/htql-dev/htql/internal/value"
)

// LoadData reads a JSON or YAML data file into a data context mapping.
// The format is chosen by extension.
func LoadData(path string) (value.Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	return decodeData(raw, filepath.Ext(path))
}

func decodeData(raw []byte, ext string) (value.Mapping, error) {
	var doc any
	switch ext {
	case ".json":
		doc, err := oj.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON data: %w", err)
		}
		return toMapping(doc)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML data: %w", err)
		}
		return toMapping(doc)
	default:
		return nil, fmt.Errorf("unsupported data format %q (want .json, .yaml, or .yml)", ext)
	}
}

func toMapping(doc any) (value.Mapping, error) {
	v, err := value.FromAny(doc)
	if err != nil {
		return nil, fmt.Errorf("unrepresentable data: %w", err)
	}
	m, ok := v.(value.Mapping)
	if !ok {
		return nil, fmt.Errorf("data root must be a mapping, got %T", doc)
	}
	return m, nil
}
