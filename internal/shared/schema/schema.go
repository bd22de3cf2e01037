// Package schema validates JSON payloads against embedded JSON Schemas.
package schema

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Compile compiles an inline schema document
func Compile(id, doc string) (*jsonschema.Schema, error) {
	if doc == "" {
		return nil, fmt.Errorf("schema is empty")
	}
	resourceID := "inmemory://" + id
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// MustCompile is Compile for package-level schemas
func MustCompile(id, doc string) *jsonschema.Schema {
	s, err := Compile(id, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate decodes data generically and validates it against s
func Validate(s *jsonschema.Schema, data []byte) error {
	var payload interface{}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return ValidateValue(s, payload)
}

// ValidateValue validates an already decoded value
func ValidateValue(s *jsonschema.Schema, v interface{}) error {
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
