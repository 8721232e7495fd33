// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"bytes"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// LoadFields reads the field configuration at path. The file is either a
// YAML list of {field_name, description, type} entries or a mapping with
// that list under "fields". Unknown keys are rejected so that a misspelt
// "field_name" is caught at startup.
func LoadFields(path string) ([]types.FieldSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewConfigError("fields_file", "%v", err)
	}
	fields, err := ParseFields(data)
	if err != nil {
		if ce, ok := err.(*types.ConfigError); ok && ce.Key == "fields_file" {
			ce.Reason = path + ": " + ce.Reason
		}
		return nil, err
	}
	return fields, nil
}

// ParseFields decodes and validates a field configuration document.
func ParseFields(data []byte) ([]types.FieldSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewConfigError("fields_file", "%v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var fields []types.FieldSpec
	switch {
	case len(doc.Content) == 0:
	case doc.Content[0].Kind == yaml.SequenceNode:
		if err := dec.Decode(&fields); err != nil {
			return nil, types.NewConfigError("fields_file", "%v", err)
		}
	case doc.Content[0].Kind == yaml.MappingNode:
		var wrapped struct {
			Fields []types.FieldSpec `yaml:"fields"`
		}
		if err := dec.Decode(&wrapped); err != nil {
			return nil, types.NewConfigError("fields_file", "%v", err)
		}
		fields = wrapped.Fields
	default:
		return nil, types.NewConfigError("fields_file", "expected a list of fields")
	}

	if err := types.ValidateFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}
