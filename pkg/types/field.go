// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// FieldSpec describes one column to extract from every paper. Field specs are
// loaded once per run and shared read-only by all workers.
type FieldSpec struct {
	// Name is the unique, non-empty column name.
	Name string `json:"field_name" yaml:"field_name"`

	// Description is the natural-language question put to the model.
	Description string `json:"description" yaml:"description"`

	// Type is an optional expected type or format hint (e.g. "integer",
	// "list of datasets").
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Query returns the retrieval query used to rank chunks for this field.
func (f FieldSpec) Query() string {
	return "Regarding '" + f.Name + "': " + f.Description
}

// ValidateFields checks that fields is non-empty and that every field has a
// unique, non-empty name and a non-empty description.
func ValidateFields(fields []FieldSpec) error {
	if len(fields) == 0 {
		return NewConfigError("fields", "at least one field is required")
	}
	seen := make(map[string]int, len(fields))
	for i, f := range fields {
		key := fmt.Sprintf("fields[%d]", i)
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return NewConfigError(key, "field_name is empty")
		}
		if strings.TrimSpace(f.Description) == "" {
			return NewConfigError(key, "field %q has an empty description", name)
		}
		if j, dup := seen[name]; dup {
			return NewConfigError(key, "field %q duplicates fields[%d]", name, j)
		}
		seen[name] = i
	}
	return nil
}
