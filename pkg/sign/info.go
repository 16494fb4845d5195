package sign

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// ParseSignatureIdentifier extracts the code signing identifier from the
// YAML printed by `rcodesign print-signature-info`. The first "identifier"
// key found in document order wins, which is the main executable's code
// directory.
func ParseSignatureIdentifier(output string) (string, error) {
	var doc interface{}
	if err := yaml.UnmarshalWithOptions([]byte(output), &doc, yaml.UseOrderedMap()); err != nil {
		return "", fmt.Errorf("failed to parse signature info: %w", err)
	}
	if id, ok := findIdentifier(doc); ok {
		return id, nil
	}
	return "", fmt.Errorf("no signing identifier found in signature info")
}

func findIdentifier(node interface{}) (string, bool) {
	switch n := node.(type) {
	case []interface{}:
		for _, item := range n {
			if id, ok := findIdentifier(item); ok {
				return id, true
			}
		}
	case yaml.MapSlice:
		for _, item := range n {
			if key, ok := item.Key.(string); ok && key == "identifier" {
				if id, ok := item.Value.(string); ok && id != "" {
					return id, true
				}
			}
		}
		for _, item := range n {
			if id, ok := findIdentifier(item.Value); ok {
				return id, true
			}
		}
	case map[string]interface{}:
		if id, ok := n["identifier"].(string); ok && id != "" {
			return id, true
		}
		for _, v := range n {
			if id, ok := findIdentifier(v); ok {
				return id, true
			}
		}
	}
	return "", false
}
