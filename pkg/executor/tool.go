package executor

import (
	"encoding/json"
	"fmt"

	"relaycap.dev/pkg/apperrors"
	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/utils/context"
)

// ToolExecutor runs `tools/call` against a registered tool's provider.
type ToolExecutor struct {
	base  *Base
	tools *registry.Registry
}

// NewToolExecutor builds a ToolExecutor over the given tool registry.
func NewToolExecutor(base *Base, tools *registry.Registry) *ToolExecutor {
	return &ToolExecutor{base: base, tools: tools}
}

// Call invokes the tool identified by toolID with the given raw JSON
// arguments, returning the provider's response body verbatim.
func (e *ToolExecutor) Call(ctx context.T, toolID string, arguments json.RawMessage) (json.RawMessage, error) {
	info := e.tools.Get(toolID)
	if info == nil || info.Tool == nil {
		return nil, apperrors.Errorf(apperrors.ErrValidation, "unknown tool %q", toolID)
	}
	var args any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("executor: unmarshal tool arguments: %w", err)
		}
	}
	return e.base.Execute(ctx, info, "tools/call", map[string]any{
		"name":      info.Tool.Name,
		"arguments": args,
	})
}
