package executor

import (
	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/registry"
)

// newTestRegistry builds a Registry pre-populated with the given
// entries, for tests that exercise resolution logic without a live
// relay pool.
func newTestRegistry(kind capability.Kind, entries map[string]*capability.Info) *registry.Registry {
	r := registry.New(kind)
	for id, info := range entries {
		r.Register(id, info)
	}
	return r
}
