// Package encryption implements two-layer seal+gift-wrap encryption of
// event payloads (NIP-59 over NIP-44), wrapping the upstream
// github.com/nbd-wtf/go-nostr/nip44 conversation-key/encrypt/decrypt
// calls for conversation-key derivation and the symmetric cipher
// itself.
package encryption

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr/nip44"

	"relaycap.dev/pkg/crypto/keys"
	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/encoders/kind"
	"relaycap.dev/pkg/encoders/tag"
	"relaycap.dev/pkg/encoders/tag/tags"
	"relaycap.dev/pkg/encoders/timestamp"
	"relaycap.dev/pkg/interfaces/signer"
)

// Mode controls how aggressively the engine wraps outgoing events and
// how it treats unencrypted incoming ones.
type Mode string

const (
	Disabled Mode = "disabled"
	Optional Mode = "optional"
	Required Mode = "required"
)

// Engine is the Encryption Engine. It is safe for concurrent use.
type Engine struct {
	mode Mode

	seenMu sync.Mutex
	seen   map[string]bool // gift-wrap event id -> first-seen tie-break marker
}

// New builds an Engine in the given mode (defaults to Optional on an
// unrecognised value).
func New(mode Mode) *Engine {
	switch mode {
	case Disabled, Required:
	default:
		mode = Optional
	}
	return &Engine{mode: mode, seen: map[string]bool{}}
}

// Mode returns the engine's configured mode.
func (e *Engine) Mode() Mode { return e.mode }

// ShouldEncryptOutgoingUnsolicited reports whether a fresh outbound
// request to an encryption-capable peer should be wrapped.
func (e *Engine) ShouldEncryptOutgoingUnsolicited() bool { return e.mode == Required }

// ShouldMirrorEncryptReply reports whether a reply to an encrypted
// incoming event should itself be wrapped.
func (e *Engine) ShouldMirrorEncryptReply() bool { return e.mode != Disabled }

// AcceptsUnencryptedIncoming reports whether a plaintext incoming event
// is acceptable under the current mode.
func (e *Engine) AcceptsUnencryptedIncoming() bool { return e.mode != Required }

// EncryptMessage implements the wrap algorithm: rumor -> seal (kind 13)
// -> gift-wrap (kind 1059), each layer signed by a fresh ephemeral key.
func (e *Engine) EncryptMessage(sender signer.I, recipientID []byte, template *event.E) (*event.E, error) {
	rumor := *template
	rumor.Pubkey = sender.Pub()
	rumor.ID = nil
	rumor.Sig = nil
	if rumor.CreatedAt == nil {
		rumor.CreatedAt = timestamp.Now()
	}
	if rumor.Tags == nil {
		rumor.Tags = tags.New()
	}
	rumorJSON, err := json.Marshal(&rumor)
	if err != nil {
		return nil, fmt.Errorf("encryption: marshal rumor: %w", err)
	}

	sealSecret := &keys.Signer{}
	if err = sealSecret.Generate(); err != nil {
		return nil, fmt.Errorf("encryption: generate seal key: %w", err)
	}
	sealEvent, err := wrapLayer(sealSecret, recipientID, kind.Seal, string(rumorJSON), nil)
	if err != nil {
		return nil, err
	}
	sealJSON, err := json.Marshal(sealEvent)
	if err != nil {
		return nil, fmt.Errorf("encryption: marshal seal: %w", err)
	}

	wrapSecret := &keys.Signer{}
	if err = wrapSecret.Generate(); err != nil {
		return nil, fmt.Errorf("encryption: generate wrap key: %w", err)
	}
	wrapTags := tags.New(tag.New("p", hex.Enc(recipientID)))
	giftWrap, err := wrapLayer(wrapSecret, recipientID, kind.GiftWrap, string(sealJSON), wrapTags)
	if err != nil {
		return nil, err
	}
	return giftWrap, nil
}

func wrapLayer(signerKey signer.I, recipientID []byte, k uint16, plaintext string, tt *tags.T) (*event.E, error) {
	convKey, err := nip44.GenerateConversationKey(hex.Enc(signerKey.Sec()), hex.Enc(recipientID))
	if err != nil {
		return nil, fmt.Errorf("encryption: derive conversation key: %w", err)
	}
	ciphertext, err := nip44.Encrypt(plaintext, convKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: encrypt layer: %w", err)
	}
	if tt == nil {
		tt = tags.New()
	}
	ev := &event.E{
		CreatedAt: timestamp.Now(),
		Kind:      kind.New(k),
		Tags:      tt,
		Content:   ciphertext,
	}
	if err = ev.Sign(signerKey); err != nil {
		return nil, fmt.Errorf("encryption: sign layer: %w", err)
	}
	return ev, nil
}

// Unwrapped is the result of successfully decrypting a gift wrap.
type Unwrapped struct {
	Inner    *event.E
	SenderID []byte
}

// Decrypt implements the unwrap algorithm. Any failure (wrong
// recipient, malformed ciphertext, wrong kind at any layer) returns a
// nil Unwrapped and nil error - decode/decrypt failure is the expected,
// silent case of "this gift-wrap isn't addressed to us".
func (e *Engine) Decrypt(giftWrap *event.E, recipient signer.I) (*Unwrapped, error) {
	if giftWrap.Kind == nil || !giftWrap.Kind.Equal(kind.GiftWrap) {
		return nil, nil
	}
	sealPlain, ok := e.tryDecrypt(recipient, giftWrap.Pubkey, giftWrap.Content)
	if !ok {
		return nil, nil
	}
	seal := &event.E{}
	if err := json.Unmarshal([]byte(sealPlain), seal); err != nil {
		return nil, nil
	}
	if seal.Kind == nil || !seal.Kind.Equal(kind.Seal) {
		return nil, nil
	}
	rumorPlain, ok := e.tryDecrypt(recipient, seal.Pubkey, seal.Content)
	if !ok {
		return nil, nil
	}
	rumor := &event.E{}
	if err := json.Unmarshal([]byte(rumorPlain), rumor); err != nil {
		return nil, nil
	}

	inner := rumor
	if rumor.Kind != nil && rumor.Kind.Equal(kind.PrivateDirectMessage) {
		nested := &event.E{}
		if err := json.Unmarshal([]byte(rumor.Content), nested); err == nil {
			inner = nested
		}
	}

	// The rumor's own ID is always nil (EncryptMessage strips it before
	// marshaling), so the tie-break has to key on the gift-wrap's own
	// signed ID instead - that's unique per delivery and is what the
	// relay pool's multi-relay fan-in actually duplicates.
	if !e.claimFirst(hex.Enc(giftWrap.ID)) {
		return nil, nil
	}
	return &Unwrapped{Inner: inner, SenderID: rumor.Pubkey}, nil
}

func (e *Engine) tryDecrypt(recipient signer.I, counterpartPub []byte, ciphertext string) (string, bool) {
	convKey, err := nip44.GenerateConversationKey(hex.Enc(recipient.Sec()), hex.Enc(counterpartPub))
	if err != nil {
		return "", false
	}
	plain, err := nip44.Decrypt(ciphertext, convKey)
	if err != nil {
		return "", false
	}
	return plain, true
}

// claimFirst returns true the first time id is seen, enforcing the
// tie-break rule that only the first delivery of a given gift-wrap is
// authoritative; redundant copies delivered by other relays in a
// multi-relay fan-in are dropped.
func (e *Engine) claimFirst(id string) bool {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	if e.seen[id] {
		return false
	}
	e.seen[id] = true
	return true
}

