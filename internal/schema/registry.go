// Package schema provides the event schema registry: payload validation and
// versioning for every domain event type published on the bus.
//
// Evolution rules:
//   - New fields: OK (backward-compatible)
//   - Rename/remove fields: BREAKING, bump the version
//   - Type changes: BREAKING, bump the version
package schema

import (
	"fmt"
	"reflect"
)

// FieldType is the expected primitive type of a payload field.
type FieldType string

// Supported field types.
const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Definition describes one version of an event type's payload shape.
type Definition struct {
	Version    int
	Required   []string
	Properties map[string]FieldType
}

// Result is the outcome of validating a payload against its schema.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// EventTypeInfo summarises a registered event type for diagnostics.
type EventTypeInfo struct {
	Type     string   `json:"type"`
	Version  int      `json:"version"`
	Required []string `json:"required"`
}

// Registry validates event payloads against a static schema table. It is
// populated at construction and read-only afterwards, so no locking is
// needed.
type Registry struct {
	schemas map[string]Definition
}

// NewRegistry creates a registry pre-loaded with the platform event schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]Definition)}
	for eventType, def := range builtinSchemas {
		r.Register(eventType, def)
	}
	return r
}

// Register adds or replaces the schema for an event type. Intended for
// construction time and tests.
func (r *Registry) Register(eventType string, def Definition) {
	r.schemas[eventType] = def
}

// ValidateEvent checks a payload against the schema registered for its event
// type: required-field presence and primitive type match for known
// properties. An unknown event type is invalid.
func (r *Registry) ValidateEvent(eventType string, data map[string]any) Result {
	def, ok := r.schemas[eventType]
	if !ok {
		return Result{Valid: false, Errors: []string{fmt.Sprintf("unknown event type: %s", eventType)}}
	}

	var errs []string

	for _, field := range def.Required {
		if v, present := data[field]; !present || v == nil {
			errs = append(errs, fmt.Sprintf("missing required field: %s", field))
		}
	}

	for field, expected := range def.Properties {
		v, present := data[field]
		if !present || v == nil {
			continue
		}
		if actual := typeOf(v); actual != expected {
			errs = append(errs, fmt.Sprintf("field %q expected %s, got %s", field, expected, actual))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// GetSchemaVersion returns the current version for an event type, or 0 if
// the type is unknown.
func (r *Registry) GetSchemaVersion(eventType string) int {
	return r.schemas[eventType].Version
}

// ListEventTypes returns all registered event types for diagnostics.
func (r *Registry) ListEventTypes() []EventTypeInfo {
	out := make([]EventTypeInfo, 0, len(r.schemas))
	for eventType, def := range r.schemas {
		out = append(out, EventTypeInfo{
			Type:     eventType,
			Version:  def.Version,
			Required: def.Required,
		})
	}
	return out
}

// typeOf maps a decoded JSON value to a schema field type. Arrays are
// detected explicitly since they also satisfy none of the scalar cases.
func typeOf(v any) FieldType {
	switch v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeNumber
	case map[string]any:
		return TypeObject
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map:
		return TypeObject
	default:
		return FieldType(reflect.TypeOf(v).Kind().String())
	}
}
