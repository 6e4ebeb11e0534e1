/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder assembles model prompts from templates with named
// {{placeholders}}.
//
// Templates and literal bindings accept only untyped string constants, so
// request data (goals, file contents, trees) can only reach a prompt through
// one of the structured encoders (JSON, YAML or XML). That keeps caller text
// from being spliced into instructions verbatim.
//
//	var planPrompt = promptbuilder.MustNew(`Repository tree:
//	{{tree}}`)
//
//	text, err := planPrompt.MustBindYAML("tree", entries).Build()
package promptbuilder

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode"
)

// literal only admits untyped string constants from the caller's source.
type literal string

// Prompt is an immutable template. Each Bind returns a copy.
type Prompt struct {
	segments []segment
	values   map[string]encoder
}

type segment struct {
	text        string
	placeholder string
}

// New parses template. Every {{name}} must be an identifier.
func New(template literal) (*Prompt, error) {
	segments, err := parse(string(template))
	if err != nil {
		return nil, err
	}
	values := make(map[string]encoder)
	for _, s := range segments {
		if s.placeholder != "" {
			values[s.placeholder] = nil
		}
	}
	return &Prompt{segments: segments, values: values}, nil
}

// Placeholders returns the set of names found in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	out := make(map[string]struct{}, len(p.values))
	for name := range p.values {
		out[name] = struct{}{}
	}
	return out
}

// BindStringLiteral substitutes a developer-supplied constant.
func (p *Prompt) BindStringLiteral(name string, value literal) (*Prompt, error) {
	return p.bind(name, func() (string, error) { return string(value), nil })
}

// BindJSON substitutes data encoded as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.bind(name, jsonEncoder(data))
}

// BindYAML substitutes data encoded as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, yamlEncoder(data))
}

// BindXML substitutes data encoded as indented XML.
func (p *Prompt) BindXML(name string, data any) (*Prompt, error) {
	return p.bind(name, xmlEncoder(data))
}

func (p *Prompt) bind(name string, enc encoder) (*Prompt, error) {
	current, ok := p.values[name]
	if !ok {
		return nil, fmt.Errorf("placeholder %q not found in template", name)
	}
	if current != nil {
		return nil, fmt.Errorf("placeholder %q already bound", name)
	}
	values := maps.Clone(p.values)
	values[name] = enc
	return &Prompt{segments: p.segments, values: values}, nil
}

// Build renders the prompt. Every placeholder must be bound.
func (p *Prompt) Build() (string, error) {
	rendered := make(map[string]string, len(p.values))
	for name, enc := range p.values {
		if enc == nil {
			return "", fmt.Errorf("unbound placeholder: %s", name)
		}
		v, err := enc()
		if err != nil {
			return "", fmt.Errorf("rendering %s: %w", name, err)
		}
		rendered[name] = v
	}

	var b strings.Builder
	for _, s := range p.segments {
		if s.placeholder != "" {
			b.WriteString(rendered[s.placeholder])
			continue
		}
		b.WriteString(s.text)
	}
	return b.String(), nil
}

// Bindable is implemented by request types that know how to fill in a
// prompt from their own fields.
type Bindable interface {
	Bind(*Prompt) (*Prompt, error)
}

// Render binds b into p and builds the result.
func Render(p *Prompt, b Bindable) (string, error) {
	bound, err := b.Bind(p)
	if err != nil {
		return "", err
	}
	return bound.Build()
}

func parse(template string) ([]segment, error) {
	var out []segment
	for template != "" {
		start := strings.Index(template, "{{")
		if start < 0 {
			out = append(out, segment{text: template})
			break
		}
		if start > 0 {
			out = append(out, segment{text: template[:start]})
		}
		end := strings.Index(template[start:], "}}")
		if end < 0 {
			return nil, errors.New("unclosed placeholder: missing '}}'")
		}
		name := strings.TrimSpace(template[start+2 : start+end])
		if !isIdentifier(name) {
			return nil, fmt.Errorf("invalid placeholder %q", name)
		}
		out = append(out, segment{placeholder: name})
		template = template[start+end+2:]
	}
	return out, nil
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '_'):
		default:
			return false
		}
	}
	return s != ""
}
