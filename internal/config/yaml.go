package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON rewrites a YAML config document as JSON so Parse can run one strict
// decoder (DisallowUnknownFields) over both formats: a typo like "reprot" is
// rejected whether the file is config.yaml or hand-written JSON. Files
// without a yaml extension pass through untouched.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	// Mappings decode to map[string]any, so this only fails on documents no
	// config could be decoded from anyway (e.g. non-string keys).
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("yaml document is not json-compatible: %w", err)
	}
	return out, nil
}
