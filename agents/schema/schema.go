/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema derives JSON schemas from Go types for prompts and tool
// definitions.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
}

// Reflect returns the schema for v.
func Reflect(v any) *jsonschema.Schema {
	return reflector().Reflect(v)
}

// ReflectType returns the schema for a zero T.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}

// JSON returns the indented schema for T, suitable for embedding in a
// system prompt.
func JSON[T any]() (string, error) {
	b, err := json.MarshalIndent(ReflectType[T](), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}
	return string(b), nil
}

// Object is the properties and required list of an object schema, in the
// shape tool-definition APIs expect.
type Object struct {
	Properties map[string]any
	Required   []string
}

// ObjectOf returns the object schema for T.
func ObjectOf[T any]() (Object, error) {
	var zero T
	return ObjectFor(&zero)
}

// ObjectFor returns the object schema for v's type.
func ObjectFor(v any) (Object, error) {
	b, err := json.Marshal(Reflect(v))
	if err != nil {
		return Object{}, fmt.Errorf("marshaling schema: %w", err)
	}
	var raw struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Object{}, fmt.Errorf("unmarshaling schema: %w", err)
	}
	if raw.Properties == nil {
		raw.Properties = map[string]any{}
	}
	return Object{Properties: raw.Properties, Required: raw.Required}, nil
}
