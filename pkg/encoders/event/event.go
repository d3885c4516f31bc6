// Package event defines the wire event: the unit every CAP-RPC request,
// response, discovery announcement, and encryption envelope rides in.
// The JSON codec is plain encoding/json.
package event

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"relaycap.dev/pkg/crypto/keys"
	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/encoders/kind"
	"relaycap.dev/pkg/encoders/tag"
	"relaycap.dev/pkg/encoders/tag/tags"
	"relaycap.dev/pkg/encoders/timestamp"
	"relaycap.dev/pkg/interfaces/signer"
)

// E is one event: id/pubkey/created_at/kind/tags/content/sig. An E with a
// nil ID and Sig is a "rumor" - an unsigned template, used by the
// Encryption Engine's wrap algorithm.
type E struct {
	ID        []byte
	Pubkey    []byte
	CreatedAt *timestamp.T
	Kind      *kind.K
	Tags      *tags.T
	Content   string
	Sig       []byte
}

// New builds an unsigned event template with CreatedAt defaulted to now.
func New() *E {
	return &E{CreatedAt: timestamp.Now(), Tags: tags.New()}
}

// GetID, GetPubkey, GetKindValue, GetCreatedAtValue, GetTagsList satisfy
// filter.Event without filter importing this package.
func (e *E) GetID() []byte     { return e.ID }
func (e *E) GetPubkey() []byte { return e.Pubkey }

func (e *E) GetKindValue() uint16 {
	if e.Kind == nil {
		return 0
	}
	return e.Kind.K
}

func (e *E) GetCreatedAtValue() int64 {
	if e.CreatedAt == nil {
		return 0
	}
	return e.CreatedAt.I64()
}
func (e *E) GetTagsList() *tag.T { return nil }

// HasTag reports whether the event carries a tag matching name/value in
// its first two fields - the matcher the Base Executor uses to correlate
// responses by `[e, execution_id]`.
func (e *E) HasTag(name, value string) bool {
	if e.Tags == nil {
		return false
	}
	for _, t := range e.Tags.T {
		if t.Name() == name && t.Value() == value {
			return true
		}
	}
	return false
}

// tagsForSerialize renders e.Tags as [][]string, defaulting to an empty
// list, matching NIP-01 canonical serialization.
func (e *E) tagsForSerialize() [][]string {
	if e.Tags == nil {
		return [][]string{}
	}
	out := make([][]string, 0, e.Tags.Len())
	for _, t := range e.Tags.T {
		out = append(out, t.ToStringSlice())
	}
	return out
}

// preimage builds the canonical [0, pubkey, created_at, kind, tags,
// content] array whose sha256 is the event id.
func (e *E) preimage() ([]byte, error) {
	arr := []any{
		0,
		hex.Enc(e.Pubkey),
		e.GetCreatedAtValue(),
		e.GetKindValue(),
		e.tagsForSerialize(),
		e.Content,
	}
	return json.Marshal(arr)
}

// ComputeID returns the canonical id for the event's current fields
// without mutating it.
func (e *E) ComputeID() ([]byte, error) {
	pre, err := e.preimage()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(pre)
	return sum[:], nil
}

// Sign computes the canonical id, sets Pubkey from sgn, and signs.
func (e *E) Sign(sgn signer.I) (err error) {
	e.Pubkey = sgn.Pub()
	if e.CreatedAt == nil {
		e.CreatedAt = timestamp.Now()
	}
	if e.Tags == nil {
		e.Tags = tags.New()
	}
	if e.ID, err = e.ComputeID(); err != nil {
		return err
	}
	if e.Sig, err = sgn.Sign(e.ID); err != nil {
		return err
	}
	return nil
}

// Verify recomputes the canonical id and checks it against e.ID and e.Sig
// under e.Pubkey.
func (e *E) Verify() (valid bool, err error) {
	want, err := e.ComputeID()
	if err != nil {
		return false, err
	}
	if string(want) != string(e.ID) {
		return false, fmt.Errorf("event: id mismatch")
	}
	s := &keys.Signer{}
	if err = s.InitPub(e.Pubkey); err != nil {
		return false, err
	}
	return s.Verify(e.ID, e.Sig)
}

// wireEvent is the hex/number JSON shape events travel the wire in.
type wireEvent struct {
	ID        string    `json:"id"`
	Pubkey    string    `json:"pubkey"`
	CreatedAt int64     `json:"created_at"`
	Kind      uint16    `json:"kind"`
	Tags      *tags.T   `json:"tags"`
	Content   string    `json:"content"`
	Sig       string    `json:"sig"`
}

// MarshalJSON renders the event in standard relay wire form.
func (e *E) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		ID:        hex.Enc(e.ID),
		Pubkey:    hex.Enc(e.Pubkey),
		CreatedAt: e.GetCreatedAtValue(),
		Kind:      e.GetKindValue(),
		Tags:      e.Tags,
		Content:   e.Content,
		Sig:       hex.Enc(e.Sig),
	}
	if w.Tags == nil {
		w.Tags = tags.New()
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses a wire-form event.
func (e *E) UnmarshalJSON(b []byte) (err error) {
	var w wireEvent
	if err = json.Unmarshal(b, &w); err != nil {
		return err
	}
	if e.ID, err = hex.Dec(w.ID); err != nil {
		return err
	}
	if e.Pubkey, err = hex.Dec(w.Pubkey); err != nil {
		return err
	}
	e.CreatedAt = timestamp.New(w.CreatedAt)
	e.Kind = kind.New(w.Kind)
	e.Tags = w.Tags
	if e.Tags == nil {
		e.Tags = tags.New()
	}
	e.Content = w.Content
	if w.Sig != "" {
		if e.Sig, err = hex.Dec(w.Sig); err != nil {
			return err
		}
	}
	return nil
}
