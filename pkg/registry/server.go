package registry

import (
	"encoding/hex"
	"sync"

	"relaycap.dev/pkg/capability"
)

// ServerRegistry, keyed by server id, caches each server's parsed
// capabilities object and answers the encryption/completions support
// questions the private handshake and base executor need before
// sending a request.
type ServerRegistry struct {
	mu      sync.RWMutex
	servers map[string]*capability.ServerInfo
}

// NewServerRegistry builds an empty ServerRegistry.
func NewServerRegistry() *ServerRegistry {
	return &ServerRegistry{servers: map[string]*capability.ServerInfo{}}
}

// Register upserts a server's announcement, parsing its capabilities
// object once (replacing, not duplicating, any prior record for the
// same server id).
func (r *ServerRegistry) Register(serverID string, providerPubkey []byte, announcementContent string, supportsEncryption bool) *capability.ServerInfo {
	info := &capability.ServerInfo{
		ServerID:            serverID,
		ProviderPubkey:      providerPubkey,
		AnnouncementContent: announcementContent,
		SupportsEncryption:  supportsEncryption,
	}
	info.ParseCapabilities()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[serverID] = info
	return info
}

// Get returns the ServerInfo for serverID, or nil.
func (r *ServerRegistry) Get(serverID string) *capability.ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.servers[serverID]
}

// GetByProvider returns the first ServerInfo whose ProviderPubkey
// matches, used when a capability carries no server id that resolves
// in this registry.
func (r *ServerRegistry) GetByProvider(providerPubkey []byte) *capability.ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		if string(s.ProviderPubkey) == string(providerPubkey) {
			return s
		}
	}
	return nil
}

// SupportsEncryption reports whether serverID's last announcement
// advertised encryption support.
func (r *ServerRegistry) SupportsEncryption(serverID string) bool {
	s := r.Get(serverID)
	return s != nil && s.SupportsEncryption
}

// SupportsCompletions reports whether serverID's capabilities object
// advertised a "completions" entry.
func (r *ServerRegistry) SupportsCompletions(serverID string) bool {
	s := r.Get(serverID)
	return s != nil && s.SupportsCompletions
}

// Remove deletes serverID. Reports whether it was present.
func (r *ServerRegistry) Remove(serverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[serverID]; !ok {
		return false
	}
	delete(r.servers, serverID)
	return true
}

// RemoveByProvider deletes every server announced by provider, returning
// the removed server ids.
func (r *ServerRegistry) RemoveByProvider(provider []byte) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, s := range r.servers {
		if string(s.ProviderPubkey) == string(provider) {
			delete(r.servers, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// List returns every known ServerInfo.
func (r *ServerRegistry) List() []*capability.ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*capability.ServerInfo, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	return out
}

// ListServersWithIDs returns every known ServerInfo keyed by server id.
func (r *ServerRegistry) ListServersWithIDs() map[string]*capability.ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*capability.ServerInfo, len(r.servers))
	for id, s := range r.servers {
		out[id] = s
	}
	return out
}

// Clear removes every server.
func (r *ServerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = map[string]*capability.ServerInfo{}
}

// PubkeyHex returns the full lowercase hex encoding of a provider's
// pubkey.
func PubkeyHex(pub []byte) string { return hex.EncodeToString(pub) }
