// Package registry implements one typed keyed store per capability kind
// plus a server registry, all sharing the base register/get/list/remove
// contract. Mutation is single-writer via an internal sync.RWMutex, with
// many concurrent readers.
package registry

import (
	"regexp"
	"sync"

	"relaycap.dev/pkg/capability"
)

// ExecutionCallback is invoked by Registry.Execute for a capability id.
// It is set once per registry, post-construction, by whatever wires up
// the executors. Execute returns its result and error unchanged; the
// endpoint's own request dispatch calls the executors directly rather
// than through this callback.
type ExecutionCallback func(id string, params []byte) ([]byte, error)

// SurfaceHandle tears down a capability's presence on the local CAP-RPC
// endpoint (e.g. unregisters it from a tool list) so Remove/overwrite can
// cleanly withdraw it.
type SurfaceHandle func()

// SurfaceFunc builds the SurfaceHandle for a newly registered id; it is
// supplied by whatever owns the local CAP-RPC surface (the endpoint) and
// called by the registry on every successful Register. The handle it
// returns is what the registry calls on overwrite, removal and Clear.
type SurfaceFunc func(id string, info *capability.Info) SurfaceHandle

// entry is one registry slot.
type entry struct {
	info    *capability.Info
	surface SurfaceHandle
}

// Registry is a single-kind capability store.
type Registry struct {
	kind capability.Kind

	mu      sync.RWMutex
	entries map[string]*entry

	onSurface ExecutionCallback
	surfaceFn SurfaceFunc
}

// New builds an empty Registry for the given capability kind.
func New(kind capability.Kind) *Registry {
	return &Registry{kind: kind, entries: map[string]*entry{}}
}

// SetExecutionCallback wires the callback Execute invokes for this
// registry's capabilities.
func (r *Registry) SetExecutionCallback(cb ExecutionCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSurface = cb
}

// Execute delegates a local invocation to the wired execution callback.
func (r *Registry) Execute(id string, params []byte) ([]byte, error) {
	r.mu.RLock()
	cb := r.onSurface
	r.mu.RUnlock()
	if cb == nil {
		return nil, ErrNoExecutor
	}
	return cb(id, params)
}

// SetSurfaceFunc wires the function used to (re)surface an entry on the
// local CAP-RPC endpoint and obtain its teardown handle.
func (r *Registry) SetSurfaceFunc(fn SurfaceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaceFn = fn
}

// Register upserts id. If id was already surfaced, the previous surface
// is torn down and the new one added, so description/schema changes
// propagate to the host app.
func (r *Registry) Register(id string, info *capability.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.entries[id]; ok && prior.surface != nil {
		prior.surface()
	}
	e := &entry{info: info}
	if r.surfaceFn != nil {
		e.surface = r.surfaceFn(id, info)
	}
	r.entries[id] = e
}

// Get returns the capability Info for id, or nil.
func (r *Registry) Get(id string) *capability.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	return e.info
}

// GetInfo is an alias for Get.
func (r *Registry) GetInfo(id string) *capability.Info { return r.Get(id) }

// List returns every registered capability Info, order unspecified.
func (r *Registry) List() []*capability.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*capability.Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	return out
}

// ListWithIDs returns the same as List, keyed by id.
func (r *Registry) ListWithIDs() map[string]*capability.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*capability.Info, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.info
	}
	return out
}

// Remove deletes id, tearing down its surface if any. Reports whether it
// was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	if e.surface != nil {
		e.surface()
	}
	delete(r.entries, id)
	return true
}

// RemoveByProvider deletes every entry whose ProviderPubkey equals
// provider, returning the removed ids.
func (r *Registry) RemoveByProvider(provider []byte) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, e := range r.entries {
		if string(e.info.ProviderPubkey) == string(provider) {
			if e.surface != nil {
				e.surface()
			}
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// RemoveByPattern deletes every entry whose id matches re, returning the
// removed ids.
func (r *Registry) RemoveByPattern(re *regexp.Regexp) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, e := range r.entries {
		if re.MatchString(id) {
			if e.surface != nil {
				e.surface()
			}
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Clear removes every entry, tearing down every surface.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.surface != nil {
			e.surface()
		}
	}
	r.entries = map[string]*entry{}
}

// Len reports the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
