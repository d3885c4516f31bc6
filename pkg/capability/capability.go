// Package capability defines the data model for a discovered capability
// and its owning server: the typed variants discovered from relay
// announcements or registered directly by a private handshake, plus the
// per-server bookkeeping the server registry keeps. Shape follows a
// plain-struct idiom rather than an interface hierarchy, since
// registries stay data-first.
package capability

import "encoding/json"

// Kind identifies which of the seven tagged variants a Capability is.
type Kind string

const (
	Tool             Kind = "tool"
	Resource         Kind = "resource"
	ResourceTemplate Kind = "resource_template"
	Prompt           Kind = "prompt"
	Completion       Kind = "completion"
	Ping             Kind = "ping"
	Server           Kind = "server"
)

// ToolDef mirrors a CAP-RPC tool definition. Named with a Def suffix so
// it doesn't collide with the Tool Kind constant above.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ResourceDef mirrors a CAP-RPC resource definition.
type ResourceDef struct {
	URI         string          `json:"uri"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	MimeType    string          `json:"mimeType,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// ResourceTemplateDef mirrors a CAP-RPC resource template (URI with
// `{var}` placeholders).
type ResourceTemplateDef struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PromptArgument is one entry in a PromptDef's argument list.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptDef mirrors a CAP-RPC prompt definition.
type PromptDef struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// Info is the common envelope every registry entry carries regardless
// of kind: the capability payload plus who announced it and through
// which server.
type Info struct {
	ID             string
	Kind           Kind
	ProviderPubkey []byte
	ServerID       string // empty if unknown / not server-scoped
	Tool           *ToolDef             `json:",omitempty"`
	Resource       *ResourceDef         `json:",omitempty"`
	Template       *ResourceTemplateDef `json:",omitempty"`
	Prompt         *PromptDef           `json:",omitempty"`
}

// MakeID builds a stable `<name>_<pubkey[0..4]>` id so distinct
// providers offering the same capability name coexist.
func MakeID(name string, providerPubkeyHex string) string {
	suffix := providerPubkeyHex
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return name + "_" + suffix
}

// ServerInfo is the server registry's per-server record. It is created
// on receipt of a server announcement and updated, never duplicated, on
// republish.
type ServerInfo struct {
	ServerID             string
	ProviderPubkey       []byte
	AnnouncementContent  string
	Capabilities         map[string]any
	SupportsEncryption   bool
	SupportsCompletions  bool
}

// ParseCapabilities parses the announcement content's "capabilities"
// object once and caches it on the ServerInfo.
func (s *ServerInfo) ParseCapabilities() {
	var parsed struct {
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := json.Unmarshal([]byte(s.AnnouncementContent), &parsed); err == nil {
		s.Capabilities = parsed.Capabilities
	}
	if s.Capabilities == nil {
		s.Capabilities = map[string]any{}
	}
	if _, ok := s.Capabilities["completions"]; ok {
		s.SupportsCompletions = true
	}
}
