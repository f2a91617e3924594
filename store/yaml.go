package store

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/phanxgames/diorama"
)

// ExportYAML renders a scene as YAML. The document has the same fields as
// the JSON wire form, unknown ones included.
func ExportYAML(scene *diorama.Scene) ([]byte, error) {
	data, err := diorama.SerializeScene(scene)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return out, nil
}

// ImportYAML parses a YAML scene and validates it like ParseScene.
func ImportYAML(data []byte) (*diorama.Scene, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("failed to parse yaml: top level is not a mapping")
	}
	j, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml: %w", err)
	}
	return diorama.ParseScene(j)
}
