package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaycap.dev/pkg/capability"
)

func TestTemplatePrefixStripsFromFirstBrace(t *testing.T) {
	require.Equal(t, "file:///docs/", templatePrefix("file:///docs/{path}"))
	require.Equal(t, "file:///static.txt", templatePrefix("file:///static.txt"))
}

func TestResolvePrefersExactResourceOverTemplate(t *testing.T) {
	e := &ResourceExecutor{
		resources: newTestRegistry(capability.Resource, map[string]*capability.Info{
			"r1": {ID: "r1", Resource: &capability.ResourceDef{URI: "file:///docs/readme.md"}},
		}),
		templates: newTestRegistry(capability.ResourceTemplate, map[string]*capability.Info{
			"t1": {ID: "t1", Template: &capability.ResourceTemplateDef{URITemplate: "file:///docs/{path}"}},
		}),
	}
	info := e.resolve("file:///docs/readme.md")
	require.NotNil(t, info)
	require.Equal(t, "r1", info.ID)
}

func TestResolvePicksLongestMatchingTemplatePrefix(t *testing.T) {
	e := &ResourceExecutor{
		resources: newTestRegistry(capability.Resource, nil),
		templates: newTestRegistry(capability.ResourceTemplate, map[string]*capability.Info{
			"broad":   {ID: "broad", Template: &capability.ResourceTemplateDef{URITemplate: "file:///{path}"}},
			"narrow":  {ID: "narrow", Template: &capability.ResourceTemplateDef{URITemplate: "file:///docs/{path}"}},
			"unrelat": {ID: "unrelat", Template: &capability.ResourceTemplateDef{URITemplate: "http://{host}"}},
		}),
	}
	info := e.resolve("file:///docs/readme.md")
	require.NotNil(t, info)
	require.Equal(t, "narrow", info.ID)
}

func TestResolveUnknownURIReturnsNil(t *testing.T) {
	e := &ResourceExecutor{
		resources: newTestRegistry(capability.Resource, nil),
		templates: newTestRegistry(capability.ResourceTemplate, nil),
	}
	require.Nil(t, e.resolve("file:///nope"))
}
