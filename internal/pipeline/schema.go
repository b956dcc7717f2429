// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/go-openapi/spec"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// Schema is a compiled JSON schema for extraction output. A nil *Schema
// accepts any well-formed JSON.
type Schema struct {
	raw    json.RawMessage
	schema *spec.Schema
}

// CompileSchema parses a JSON schema document.
func CompileSchema(raw []byte) (*Schema, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	var s spec.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return &Schema{raw: json.RawMessage(raw), schema: &s}, nil
}

// Raw returns the schema document as given, or nil.
func (s *Schema) Raw() json.RawMessage {
	if s == nil {
		return nil
	}
	return s.raw
}

// Validate checks that data is well-formed JSON honoring the schema.
func (s *Schema) Validate(data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if s == nil {
		return nil
	}
	if err := validate.AgainstSchema(s.schema, v, strfmt.Default); err != nil {
		return err
	}
	return nil
}

// countItems reports how many data points an extraction produced: the
// length of a top-level array, the length of the first array-valued field
// of an object, 1 for any other non-null value, 0 for null.
func countItems(data json.RawMessage) int {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return 0
	}
	switch t := v.(type) {
	case nil:
		return 0
	case []any:
		return len(t)
	case map[string]any:
		if len(t) == 0 {
			return 0
		}
		for _, key := range slices.Sorted(maps.Keys(t)) {
			if arr, ok := t[key].([]any); ok {
				return len(arr)
			}
		}
		return 1
	default:
		return 1
	}
}
