package patterns

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the rule set from the built-in rules plus the keyword extension file
// at path. An empty path yields the built-in rules.
func Load(path string) (*Library, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern extension: %w", err)
	}

	ext, err := ParseExtension(data)
	if err != nil {
		return nil, err
	}
	return build(ext), nil
}

// ParseExtension decodes a YAML keyword extension document
func ParseExtension(data []byte) (Extension, error) {
	var ext Extension
	if err := yaml.Unmarshal(data, &ext); err != nil {
		return Extension{}, fmt.Errorf("parse pattern extension: %w", err)
	}
	return ext, nil
}

func normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
