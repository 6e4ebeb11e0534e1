/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/melodydashora/RepEditor/agents/schema"
)

// Call is one tool invocation requested by the model. The set of
// implementations is closed: every Call is one of the types below.
type Call interface {
	// Tool is the name the model uses for this call.
	Tool() string
	description() string
	sealed()
}

// ReadFile reads a file.
type ReadFile struct {
	Path string `json:"path" jsonschema:"required,description=File path relative to the repository root"`
}

// WriteFile creates or replaces a file.
type WriteFile struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the repository root"`
	Content string `json:"content" jsonschema:"required,description=Complete new file content"`
}

// ListDirectory lists one directory.
type ListDirectory struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory relative to the repository root (default: the root)"`
}

// SearchFiles finds files whose name matches a glob.
type SearchFiles struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Glob matched against file names such as *.go or config*"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search (default: the root)"`
}

// GrepCode searches file contents with a regular expression.
type GrepCode struct {
	Pattern string `json:"pattern" jsonschema:"required,description=RE2 regular expression matched against each line"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search (default: the root)"`
}

// ExecuteCommand runs a whitelisted read-only command.
type ExecuteCommand struct {
	Command string `json:"command" jsonschema:"required,description=Command line such as 'wc -l main.go'. No shell features are available."`
}

// MemoryRead reads the latest version of a memory entry.
type MemoryRead struct {
	Key string `json:"key" jsonschema:"required,description=Memory key"`
}

// MemoryWrite stores a new version of a memory entry.
type MemoryWrite struct {
	Key  string `json:"key" jsonschema:"required,description=Memory key"`
	Data string `json:"data" jsonschema:"required,description=Text or JSON to remember"`
}

func (ReadFile) Tool() string       { return "read_file" }
func (WriteFile) Tool() string      { return "write_file" }
func (ListDirectory) Tool() string  { return "list_directory" }
func (SearchFiles) Tool() string    { return "search_files" }
func (GrepCode) Tool() string       { return "grep_code" }
func (ExecuteCommand) Tool() string { return "execute_command" }
func (MemoryRead) Tool() string     { return "memory_read" }
func (MemoryWrite) Tool() string    { return "memory_write" }

func (ReadFile) description() string { return "Read the contents of a file from the repository." }
func (WriteFile) description() string {
	return "Create or overwrite a file in the repository. Changes are returned to the user as a diff."
}
func (ListDirectory) description() string { return "List the files and directories in a directory." }
func (SearchFiles) description() string   { return "Find files by name pattern." }
func (GrepCode) description() string {
	return "Search file contents for a regular expression. Returns path:line: text for each match."
}
func (ExecuteCommand) description() string {
	return "Run one of: " + allowedList + ". Runs in the repository root without a shell."
}
func (MemoryRead) description() string  { return "Read a value remembered for this repository." }
func (MemoryWrite) description() string { return "Remember a value for this repository. Earlier versions are kept." }

func (ReadFile) sealed()       {}
func (WriteFile) sealed()      {}
func (ListDirectory) sealed()  {}
func (SearchFiles) sealed()    {}
func (GrepCode) sealed()       {}
func (ExecuteCommand) sealed() {}
func (MemoryRead) sealed()     {}
func (MemoryWrite) sealed()    {}

// kinds lists every Call, in the order tools are offered to the model.
var kinds = []Call{
	ReadFile{},
	WriteFile{},
	ListDirectory{},
	SearchFiles{},
	GrepCode{},
	ExecuteCommand{},
	MemoryRead{},
	MemoryWrite{},
}

// Decode parses the input of the tool named name. Unknown tools and unknown
// fields are errors.
func Decode(name string, input json.RawMessage) (Call, error) {
	switch name {
	case "read_file":
		return decodeAs[ReadFile](input)
	case "write_file":
		return decodeAs[WriteFile](input)
	case "list_directory":
		return decodeAs[ListDirectory](input)
	case "search_files":
		return decodeAs[SearchFiles](input)
	case "grep_code":
		return decodeAs[GrepCode](input)
	case "execute_command":
		return decodeAs[ExecuteCommand](input)
	case "memory_read":
		return decodeAs[MemoryRead](input)
	case "memory_write":
		return decodeAs[MemoryWrite](input)
	default:
		return nil, fmt.Errorf("unknown tool: %q", name)
	}
}

func decodeAs[T Call](input json.RawMessage) (Call, error) {
	var out T
	if len(bytes.TrimSpace(input)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid %s input: %w", out.Tool(), err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid %s input: unexpected data after JSON value", out.Tool())
	}
	return out, nil
}

// definitions returns the tool parameters offered to the model.
func definitions(webSearch bool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(kinds)+1)
	for _, k := range kinds {
		obj, err := schema.ObjectFor(k)
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", k.Tool(), err)
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        k.Tool(),
				Description: anthropic.String(k.description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       "object",
					Properties: obj.Properties,
					Required:   obj.Required,
				},
			},
		})
	}
	if webSearch {
		out = append(out, anthropic.ToolUnionParam{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(5),
			},
		})
	}
	return out, nil
}
