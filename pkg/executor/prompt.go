package executor

import (
	"encoding/json"

	"relaycap.dev/pkg/apperrors"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/utils/context"
)

// PromptExecutor runs `prompts/get`.
type PromptExecutor struct {
	base    *Base
	prompts *registry.Registry
}

// NewPromptExecutor builds a PromptExecutor over the prompt registry.
func NewPromptExecutor(base *Base, prompts *registry.Registry) *PromptExecutor {
	return &PromptExecutor{base: base, prompts: prompts}
}

// Get resolves promptID's arguments against its provider.
func (e *PromptExecutor) Get(ctx context.T, promptID string, arguments map[string]string) (json.RawMessage, error) {
	info := e.prompts.Get(promptID)
	if info == nil || info.Prompt == nil {
		return nil, apperrors.Errorf(apperrors.ErrValidation, "unknown prompt %q", promptID)
	}
	return e.base.Execute(ctx, info, "prompts/get", map[string]any{
		"name":      info.Prompt.Name,
		"arguments": arguments,
	})
}
