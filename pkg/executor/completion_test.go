package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaycap.dev/pkg/capability"
)

func TestResolveReferenceByPromptName(t *testing.T) {
	e := &CompletionExecutor{
		prompts: newTestRegistry(capability.Prompt, map[string]*capability.Info{
			"p1": {ID: "p1", Prompt: &capability.PromptDef{Name: "greeting"}},
		}),
		resources: newTestRegistry(capability.Resource, nil),
	}
	info := e.resolveReference(Reference{Type: "ref/prompt", Name: "greeting"})
	require.NotNil(t, info)
	require.Equal(t, "p1", info.ID)
}

func TestResolveReferenceByResourceURI(t *testing.T) {
	e := &CompletionExecutor{
		prompts: newTestRegistry(capability.Prompt, nil),
		resources: newTestRegistry(capability.Resource, map[string]*capability.Info{
			"r1": {ID: "r1", Resource: &capability.ResourceDef{URI: "file:///a"}},
		}),
	}
	info := e.resolveReference(Reference{Type: "ref/resource", Name: "file:///a"})
	require.NotNil(t, info)
	require.Equal(t, "r1", info.ID)
}

func TestResolveReferenceUnknownTypeReturnsNil(t *testing.T) {
	e := &CompletionExecutor{
		prompts:   newTestRegistry(capability.Prompt, nil),
		resources: newTestRegistry(capability.Resource, nil),
	}
	require.Nil(t, e.resolveReference(Reference{Type: "ref/bogus", Name: "x"}))
}
