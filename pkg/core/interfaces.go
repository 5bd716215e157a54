// Package core holds the contracts shared across Loom packages.
package core

import "context"

// Tool is an executable capability exposed to the agent. Implementations are
// opaque to Loom: the registry and orchestrator only rely on Name for
// identity (deduplication) and Call for invocation. Tools are typically
// backed by MCP servers, but any value satisfying the interface works.
type Tool interface {
	Name() string
	Call(ctx context.Context, input any) (any, error)
}

// ToolSource resolves a declared tool name to a concrete Tool. Skill
// manifests reference tools by name; the orchestrator resolves them through
// a ToolSource at context-build time.
type ToolSource interface {
	Resolve(ctx context.Context, name string) (Tool, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, input any) (any, error)
}

// Name returns the tool's name.
func (t ToolFunc) Name() string { return t.ToolName }

// Call invokes the wrapped function.
func (t ToolFunc) Call(ctx context.Context, input any) (any, error) {
	return t.Fn(ctx, input)
}
