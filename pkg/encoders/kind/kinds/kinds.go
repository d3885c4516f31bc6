// Package kinds holds a set of event kinds, used to build filters that
// match more than one kind at once.
package kinds

import "relaycap.dev/pkg/encoders/kind"

// T is an ordered list of kinds.
type T struct {
	K []*kind.K
}

// New builds a kinds.T from raw kind numbers.
func New(kk ...uint16) *T {
	t := &T{K: make([]*kind.K, len(kk))}
	for i, k := range kk {
		t.K[i] = kind.New(k)
	}
	return t
}

// Contains reports whether k is present in the set.
func (t *T) Contains(k uint16) bool {
	if t == nil {
		return false
	}
	for _, kk := range t.K {
		if kk.Equal(k) {
			return true
		}
	}
	return false
}

// ToUint16 returns the raw kind numbers.
func (t *T) ToUint16() []uint16 {
	if t == nil {
		return nil
	}
	out := make([]uint16, len(t.K))
	for i, k := range t.K {
		out[i] = k.K
	}
	return out
}
