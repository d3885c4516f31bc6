package registry

import "relaycap.dev/pkg/capability"

// Set bundles the five registries (tools, resources, resource
// templates, prompts, servers), the shape every other component
// (discovery loop, private handshake, base executor, local CAP-RPC
// endpoint) is constructed against.
type Set struct {
	Tools             *Registry
	Resources         *Registry
	ResourceTemplates *Registry
	Prompts           *Registry
	Servers           *ServerRegistry
}

// NewSet builds an empty Set.
func NewSet() *Set {
	return &Set{
		Tools:             New(capability.Tool),
		Resources:         New(capability.Resource),
		ResourceTemplates: New(capability.ResourceTemplate),
		Prompts:           New(capability.Prompt),
		Servers:           NewServerRegistry(),
	}
}

// Clear empties every registry in the set.
func (s *Set) Clear() {
	s.Tools.Clear()
	s.Resources.Clear()
	s.ResourceTemplates.Clear()
	s.Prompts.Clear()
	s.Servers.Clear()
}

// RemoveByProvider removes provider's entries from every registry,
// returning the total removed ids across all kinds plus server ids.
func (s *Set) RemoveByProvider(provider []byte) (ids []string, serverIDs []string) {
	ids = append(ids, s.Tools.RemoveByProvider(provider)...)
	ids = append(ids, s.Resources.RemoveByProvider(provider)...)
	ids = append(ids, s.ResourceTemplates.RemoveByProvider(provider)...)
	ids = append(ids, s.Prompts.RemoveByProvider(provider)...)
	serverIDs = s.Servers.RemoveByProvider(provider)
	return
}
