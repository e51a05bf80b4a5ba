// Package toolrouter exposes the gateway's three logical tools (spec §4.6)
// behind a uniform Tool interface, grounded on internal/tools/models/tool.go
// and internal/tools/jobs/status.go's Name/Description/Schema/Execute shape.
package toolrouter

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolResult is one tool call's outcome. Content is the raw text the
// transport layer places at content[0].text (spec §6); Metadata carries the
// structured side-channel (status, confidence, usage, ...) tools other than
// a bare JSON dump want to expose alongside their text.
type ToolResult struct {
	Content  string
	Metadata map[string]any
	IsError  bool
}

// Tool is one RPC-exposed operation.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// Router dispatches by tool name to a registered Tool.
type Router struct {
	tools map[string]Tool
}

// NewRouter builds a Router over the given tools, keyed by Name().
func NewRouter(tools ...Tool) *Router {
	r := &Router{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Dispatch executes the named tool, or reports method-not-found.
func (r *Router) Dispatch(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("Unknown tool %q", name)
	}
	return tool.Execute(ctx, params)
}

// List returns every registered tool's name/description/schema, for the
// dispatcher's tool-inventory handshake.
func (r *Router) List() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolDescriptor{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// ToolDescriptor is the tool-inventory entry returned by List.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

func toolError(message string) *ToolResult {
	return &ToolResult{Content: message, IsError: true}
}

func jsonResult(payload any) (*ToolResult, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &ToolResult{Content: string(encoded)}, nil
}
