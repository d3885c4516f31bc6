package executor

import (
	"encoding/json"

	"relaycap.dev/pkg/apperrors"
	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/utils/context"
)

// CompletionExecutor runs `completion/complete`: it resolves the target
// provider via whatever prompt or resource the completion request
// references, then refuses to even send the request if that provider's
// server never advertised a "completions" capability.
type CompletionExecutor struct {
	base      *Base
	prompts   *registry.Registry
	resources *registry.Registry
	servers   *registry.ServerRegistry
}

// NewCompletionExecutor builds a CompletionExecutor.
func NewCompletionExecutor(base *Base, prompts, resources *registry.Registry, servers *registry.ServerRegistry) *CompletionExecutor {
	return &CompletionExecutor{base: base, prompts: prompts, resources: resources, servers: servers}
}

// Reference names the prompt or resource a completion request argument
// belongs to.
type Reference struct {
	Type string // "ref/prompt" or "ref/resource"
	Name string // prompt name, or resource uri
}

// Argument is the single argument CAP-RPC's completion/complete is asked
// to complete.
type Argument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Complete resolves ref's provider and forwards the completion request,
// failing with ProtocolError if the provider's server doesn't advertise
// completions support.
func (e *CompletionExecutor) Complete(ctx context.T, ref Reference, arg Argument) (json.RawMessage, error) {
	info := e.resolveReference(ref)
	if info == nil {
		return nil, apperrors.Errorf(apperrors.ErrValidation, "unknown completion reference %q", ref.Name)
	}
	if info.ServerID != "" && !e.servers.SupportsCompletions(info.ServerID) {
		return nil, apperrors.Errorf(apperrors.ErrProtocol, "server %s does not support completions", info.ServerID)
	}
	return e.base.Execute(ctx, info, "completion/complete", map[string]any{
		"ref":      map[string]string{"type": ref.Type, "name": ref.Name},
		"argument": arg,
	})
}

func (e *CompletionExecutor) resolveReference(ref Reference) *capability.Info {
	switch ref.Type {
	case "ref/prompt":
		for _, info := range e.prompts.List() {
			if info.Prompt != nil && info.Prompt.Name == ref.Name {
				return info
			}
		}
	case "ref/resource":
		for _, info := range e.resources.List() {
			if info.Resource != nil && info.Resource.URI == ref.Name {
				return info
			}
		}
	}
	return nil
}
