package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jmercadier/amortization-extractor/constants"
)

// BuildRowJSONSchema returns the JSON Schema (draft 2020-12 subset) every
// normalized record must satisfy before it reaches the builder: canonical
// field names only, scalar values only. Nested objects or arrays are
// rejected here, not coerced.
func BuildRowJSONSchema() map[string]any {
	props := make(map[string]any, len(constants.AllFields))
	for _, f := range constants.AllFields {
		props[string(f)] = map[string]any{
			"type": []string{"string", "number", "integer", "null"},
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

// rowSchema is the compiled form, built once per Normalizer.
type rowSchema struct {
	compiled *jsonschema.Schema
}

func compileRowSchema() (*rowSchema, error) {
	b, err := json.Marshal(BuildRowJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("row.schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("row.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &rowSchema{compiled: compiled}, nil
}

func (s *rowSchema) validate(rec Record) error {
	doc := make(map[string]any, len(rec))
	for k, v := range rec {
		doc[string(k)] = v
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("record does not match row schema: %w", err)
	}
	return nil
}
