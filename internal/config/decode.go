package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// ParseBytes strictly decodes config content. YAML documents are re-encoded
// as JSON first so a single json.Decoder with DisallowUnknownFields guards
// both formats. Unknown fields and trailing data are errors.
func ParseBytes(path string, b []byte) (*Config, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		jb, err := yamlToJSON(b)
		if err != nil {
			return nil, err
		}
		b = jb
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("config: trailing data after document")
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func yamlToJSON(b []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	jb, err := json.Marshal(jsonSafe(doc))
	if err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	return jb, nil
}

// jsonSafe rewrites non-string map keys to strings, recursively, so a
// YAML-decoded document can be marshaled as JSON.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, elem := range t {
			t[k] = jsonSafe(elem)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[fmt.Sprint(k)] = jsonSafe(elem)
		}
		return out
	case []any:
		for i := range t {
			t[i] = jsonSafe(t[i])
		}
		return t
	}
	return v
}
