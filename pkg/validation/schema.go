// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package validation checks raw model output against a schema and drives a
// bounded self-correction loop when it does not conform.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/loomlabs/loom/pkg/errors"
)

// FieldError describes one schema violation in a form a model can act on:
// where it is, what was expected there, and what actually arrived.
type FieldError struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
	Message  string `json:"message,omitempty"`
}

func (e FieldError) String() string {
	s := fmt.Sprintf("%s: expected %s, got %s", e.Path, e.Expected, e.Got)
	if e.Message != "" {
		s += " (" + e.Message + ")"
	}
	return s
}

// Schema validates raw model output. A successful validation returns the
// parsed value; a failed one returns every violation found, not just the
// first, so a single correction round can address all of them.
type Schema interface {
	Validate(raw string) (any, []FieldError)

	// Describe renders the schema for inclusion in a correction
	// instruction.
	Describe() string
}

// FieldType enumerates the property types ObjectSchema understands.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Property constrains one field of an ObjectSchema.
type Property struct {
	Type       FieldType           `json:"type"`
	Enum       []string            `json:"enum,omitempty"`
	Minimum    *float64            `json:"minimum,omitempty"`
	Maximum    *float64            `json:"maximum,omitempty"`
	Items      *Property           `json:"items,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectSchema validates a JSON object with typed properties. Unknown fields
// in the payload are tolerated; only declared constraints are enforced.
type ObjectSchema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ParseSchema builds an ObjectSchema from its JSON form, as written in a
// schema file: {"type":"object","properties":{...},"required":[...]}.
func ParseSchema(data []byte) (*ObjectSchema, error) {
	var raw struct {
		Type       string              `json:"type"`
		Properties map[string]Property `json:"properties"`
		Required   []string            `json:"required"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "parse schema", err)
	}
	if raw.Type != "" && raw.Type != "object" {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"top-level schema type must be object, got %q", raw.Type)
	}
	if len(raw.Properties) == 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "schema declares no properties")
	}
	return &ObjectSchema{Properties: raw.Properties, Required: raw.Required}, nil
}

// Validate parses raw as a JSON object and checks it against the schema.
// Markdown code fences around the payload are stripped first; models often
// wrap JSON in ```json blocks despite instructions.
func (s *ObjectSchema) Validate(raw string) (any, []FieldError) {
	payload := StripFences(raw)

	var value map[string]any
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, []FieldError{{
			Path:     "$",
			Expected: "a JSON object",
			Got:      summarize(payload),
			Message:  err.Error(),
		}}
	}

	errs := s.validateObject("$", value, s.Properties, s.Required)
	if len(errs) > 0 {
		return nil, errs
	}
	return value, nil
}

// Describe renders the schema as compact JSON.
func (s *ObjectSchema) Describe() string {
	doc := map[string]any{"type": "object", "properties": s.Properties}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("%+v", s)
	}
	return string(out)
}

func (s *ObjectSchema) validateObject(path string, value map[string]any, props map[string]Property, required []string) []FieldError {
	var errs []FieldError

	for _, name := range required {
		if _, ok := value[name]; !ok {
			errs = append(errs, FieldError{
				Path:     joinPath(path, name),
				Expected: describeType(props[name]),
				Got:      "missing",
				Message:  "required field is absent",
			})
		}
	}

	// Deterministic error order regardless of map iteration.
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fieldValue, ok := value[name]
		if !ok {
			continue
		}
		errs = append(errs, s.validateValue(joinPath(path, name), fieldValue, props[name])...)
	}
	return errs
}

func (s *ObjectSchema) validateValue(path string, value any, prop Property) []FieldError {
	switch prop.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return []FieldError{typeError(path, prop, value)}
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, str) {
			return []FieldError{{
				Path:     path,
				Expected: "one of " + strings.Join(prop.Enum, ", "),
				Got:      fmt.Sprintf("%q", str),
			}}
		}

	case TypeNumber, TypeInteger:
		num, ok := value.(float64)
		if !ok {
			return []FieldError{typeError(path, prop, value)}
		}
		if prop.Type == TypeInteger && num != math.Trunc(num) {
			return []FieldError{{
				Path:     path,
				Expected: "integer",
				Got:      fmt.Sprintf("%v", num),
			}}
		}
		if prop.Minimum != nil && num < *prop.Minimum {
			return []FieldError{{
				Path:     path,
				Expected: fmt.Sprintf("%s >= %v", prop.Type, *prop.Minimum),
				Got:      fmt.Sprintf("%v", num),
			}}
		}
		if prop.Maximum != nil && num > *prop.Maximum {
			return []FieldError{{
				Path:     path,
				Expected: fmt.Sprintf("%s <= %v", prop.Type, *prop.Maximum),
				Got:      fmt.Sprintf("%v", num),
			}}
		}

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return []FieldError{typeError(path, prop, value)}
		}

	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			return []FieldError{typeError(path, prop, value)}
		}
		if prop.Items != nil {
			var errs []FieldError
			for i, item := range items {
				errs = append(errs, s.validateValue(fmt.Sprintf("%s[%d]", path, i), item, *prop.Items)...)
			}
			return errs
		}

	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return []FieldError{typeError(path, prop, value)}
		}
		return s.validateObject(path, obj, prop.Properties, prop.Required)

	default:
		return []FieldError{{
			Path:     path,
			Expected: "a known type",
			Got:      string(prop.Type),
			Message:  "schema declares an unsupported type",
		}}
	}
	return nil
}

func typeError(path string, prop Property, value any) FieldError {
	return FieldError{
		Path:     path,
		Expected: describeType(prop),
		Got:      describeValue(value),
	}
}

func describeType(prop Property) string {
	if prop.Type == "" {
		return "a value"
	}
	return string(prop.Type)
}

func describeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", summarize(v))
	case float64:
		return fmt.Sprintf("number %v", v)
	case bool:
		return fmt.Sprintf("boolean %v", v)
	case []any:
		return fmt.Sprintf("array of %d", len(v))
	case map[string]any:
		return fmt.Sprintf("object with %d fields", len(v))
	default:
		return fmt.Sprintf("%T", value)
	}
}

func joinPath(base, field string) string {
	return base + "." + field
}

func contains(set []string, item string) bool {
	for _, s := range set {
		if s == item {
			return true
		}
	}
	return false
}

// StripFences removes a surrounding markdown code fence (``` or ```json)
// when the whole payload is fenced, returning the inner text.
func StripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		// Drop the language tag line.
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarize(text string) string {
	const max = 80
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
