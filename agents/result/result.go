/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package result decodes structured values out of free-form model replies.
package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Validator is implemented by reply types that check their own invariants
// after decoding.
type Validator interface {
	Validate() error
}

// ExtractJSON returns the JSON document embedded in reply. A ```json fenced
// block wins; otherwise any surrounding fence is stripped, and failing that
// the span from the first '{' to the last '}' is returned.
func ExtractJSON(reply string) string {
	if body, ok := fenced(reply); ok {
		return body
	}

	trimmed := strings.TrimSpace(reply)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed
	}

	start, end := strings.IndexByte(trimmed, '{'), strings.LastIndexByte(trimmed, '}')
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}

// fenced returns the contents of the first ```json block that starts on its
// own line.
func fenced(reply string) (string, bool) {
	var buf strings.Builder
	in := false
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !in && strings.EqualFold(trimmed, "```json"):
			in = true
		case in && trimmed == "```":
			return strings.TrimSpace(buf.String()), true
		case in:
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	if in {
		return strings.TrimSpace(buf.String()), true
	}
	return "", false
}

// Decode extracts the JSON in reply and decodes it strictly into T: unknown
// fields and trailing data are rejected, then T's Validate runs.
func Decode[T any, PT interface {
	*T
	Validator
}](reply string) (*T, error) {
	body := ExtractJSON(reply)
	if body == "" {
		return nil, errors.New("reply contains no JSON")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var out T
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decoding reply: unexpected data after JSON value")
	}
	if err := PT(&out).Validate(); err != nil {
		return nil, fmt.Errorf("validating reply: %w", err)
	}
	return &out, nil
}

// Compact re-encodes a JSON document without insignificant whitespace. It is
// used to keep tool inputs short in transcripts.
func Compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
