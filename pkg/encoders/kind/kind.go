// Package kind enumerates the event kinds this system's wire protocol
// uses.
package kind

// K wraps a raw kind number.
type K struct{ K uint16 }

// New builds a K from any integer-like value.
func New(k uint16) *K { return &K{K: k} }

// Equal reports whether k's numeric value equals other.
func (k *K) Equal(other uint16) bool { return k != nil && k.K == other }

const (
	// ServerAnnouncement is an addressable event advertising a provider's
	// server identity and metadata.
	ServerAnnouncement uint16 = 31316
	// ToolsList is an addressable event listing a server's tools.
	ToolsList uint16 = 31317
	// ResourcesList is an addressable event listing a server's resources
	// (and, when its d-tag names a templates list, resource templates).
	ResourcesList uint16 = 31318
	// PromptsList is an addressable event listing a server's prompts.
	PromptsList uint16 = 31319

	// Request is an ephemeral CAP-RPC request event.
	Request uint16 = 25910
	// Response is an ephemeral CAP-RPC response event.
	Response uint16 = 26910
	// Notification is an ephemeral out-of-band status event (e.g.
	// payment-required, error).
	Notification uint16 = 21316

	// GiftWrap is the outer encrypted carrier envelope (NIP-59).
	GiftWrap uint16 = 1059
	// Seal is the inner encrypted layer, never sent on the wire directly.
	Seal uint16 = 13
	// PrivateDirectMessage is the innermost plaintext envelope carried
	// inside a seal when wrapping a CAP-RPC event.
	PrivateDirectMessage uint16 = 14

	// WalletRequest and WalletResponse are NIP-47 (Nostr Wallet Connect)
	// kinds used by the Payment Handler.
	WalletRequest  uint16 = 23194
	WalletResponse uint16 = 23195
	// WalletInfo is the wallet service's capability-advertisement kind.
	WalletInfo uint16 = 13194
	// WalletNotification carries async payment notifications.
	WalletNotification uint16 = 23196
)

// DiscoveryKinds is the filter kind set the Discovery Loop queries.
var DiscoveryKinds = []uint16{
	ServerAnnouncement, ToolsList, ResourcesList, PromptsList,
}

// ResponseKinds is the filter kind set a Base Executor subscribes to
// while awaiting a reply to a dispatched request.
var ResponseKinds = []uint16{Response, Notification, GiftWrap}
