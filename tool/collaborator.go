package tool

import (
	"context"
	"fmt"
)

// Collaborator dispatches a resolved tool call to the registered
// implementation. It sits behind the llm.ToolExecutor the turn engine hands
// to a Provider: by the time Execute runs, the reactor has already decided
// the call is not Cancelled, so Execute only has to report "unknown tool"
// or propagate the tool's own error.
type Collaborator struct {
	registry *Registry
}

// NewCollaborator wraps registry for dispatch.
func NewCollaborator(registry *Registry) *Collaborator {
	return &Collaborator{registry: registry}
}

// Execute calls the named tool with args, or returns an error if no tool by
// that name is registered.
func (c *Collaborator) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := c.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool: unknown tool %q", name)
	}
	return t.Call(ctx, args)
}
