// Package filter implements the query/subscription filter shape relays
// are asked to match against: kinds/authors/since/limit plus
// single-letter tag filters.
package filter

import (
	"encoding/json"

	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/encoders/tag"
	"relaycap.dev/pkg/encoders/timestamp"
)

// F is one filter. TagFilters is keyed by single-character tag names (e.g.
// "d", "s", "p", "e") and matches events carrying a tag of that name whose
// value is in the given set.
type F struct {
	Kinds      []uint16
	Authors    [][]byte
	Since      *timestamp.T
	Limit      int
	TagFilters map[string][]string
}

// New builds an empty filter.
func New() *F { return &F{} }

// WithKinds sets the kind set.
func (f *F) WithKinds(kk ...uint16) *F {
	f.Kinds = kk
	return f
}

// WithAuthors sets the author pubkey set.
func (f *F) WithAuthors(authors ...[]byte) *F {
	f.Authors = authors
	return f
}

// WithLimit sets the result limit.
func (f *F) WithLimit(n int) *F {
	f.Limit = n
	return f
}

// WithSince sets the lower time bound.
func (f *F) WithSince(t *timestamp.T) *F {
	f.Since = t
	return f
}

// WithTag adds values to the tag filter set named by letter.
func (f *F) WithTag(letter string, values ...string) *F {
	if f.TagFilters == nil {
		f.TagFilters = map[string][]string{}
	}
	f.TagFilters[letter] = append(f.TagFilters[letter], values...)
	return f
}

func hasKind(kinds []uint16, k uint16) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}

func hasAuthor(authors [][]byte, pub []byte) bool {
	if len(authors) == 0 {
		return true
	}
	for _, a := range authors {
		if string(a) == string(pub) {
			return true
		}
	}
	return false
}

// Event is the minimal surface Match needs from an event, satisfied by
// *event.E without importing it, so filter does not depend on the event
// package.
type Event interface {
	GetID() []byte
	GetPubkey() []byte
	GetKindValue() uint16
	GetCreatedAtValue() int64
	GetTagsList() *tag.T
}

// Match reports whether ev satisfies the kinds, authors and since clauses
// of f. TagFilters and Limit are not checked here; TagFilters take effect
// only in the REQ sent to relays (see MarshalJSON).
func (f *F) Match(ev Event) bool {
	if f == nil || ev == nil {
		return false
	}
	if !hasKind(f.Kinds, ev.GetKindValue()) {
		return false
	}
	if !hasAuthor(f.Authors, ev.GetPubkey()) {
		return false
	}
	if f.Since != nil && ev.GetCreatedAtValue() < f.Since.I64() {
		return false
	}
	return true
}

// filterJSON is the wire shape relays speak: kinds/authors/since/limit
// plus "#x": [...] entries per tag letter.
type filterJSON struct {
	Kinds   []uint16 `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
}

// MarshalJSON renders the filter in relay wire form.
func (f *F) MarshalJSON() ([]byte, error) {
	fj := filterJSON{Kinds: f.Kinds}
	for _, a := range f.Authors {
		fj.Authors = append(fj.Authors, hex.Enc(a))
	}
	if f.Since != nil {
		v := f.Since.I64()
		fj.Since = &v
	}
	if f.Limit > 0 {
		fj.Limit = &f.Limit
	}
	base, err := json.Marshal(fj)
	if err != nil {
		return nil, err
	}
	if len(f.TagFilters) == 0 {
		return base, nil
	}
	m := map[string]any{}
	if err = json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for letter, values := range f.TagFilters {
		m["#"+letter] = values
	}
	return json.Marshal(m)
}
