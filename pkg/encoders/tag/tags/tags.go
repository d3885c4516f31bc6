// Package tags holds an ordered list of tag.T, the way an event's "tags"
// array is modeled.
package tags

import (
	"bytes"
	"encoding/json"

	"relaycap.dev/pkg/encoders/tag"
)

// T is an ordered list of tags.
type T struct {
	T []*tag.T
}

// New builds a tags.T from the given tags.
func New(tt ...*tag.T) *T {
	return &T{T: append([]*tag.T(nil), tt...)}
}

// Append adds a tag to the end of the list.
func (t *T) Append(tt *tag.T) {
	t.T = append(t.T, tt)
}

// GetFirst returns the first tag whose name matches prefix's name, or nil.
func (t *T) GetFirst(prefix *tag.T) *tag.T {
	if t == nil || prefix == nil {
		return nil
	}
	name := prefix.Name()
	for _, tt := range t.T {
		if tt.Name() == name {
			return tt
		}
	}
	return nil
}

// GetAll returns every tag whose name matches name.
func (t *T) GetAll(name string) []*tag.T {
	if t == nil {
		return nil
	}
	var out []*tag.T
	for _, tt := range t.T {
		if tt.Name() == name {
			out = append(out, tt)
		}
	}
	return out
}

// GetD returns the value of the first "d" tag, or "" if absent. Used to
// identify addressable events.
func (t *T) GetD() string {
	d := t.GetFirst(tag.New("d"))
	return d.Value()
}

// GetFirstTagValue is a convenience for GetFirst(tag.New(name)).Value().
func (t *T) GetFirstTagValue(name string) string {
	return t.GetFirst(tag.New(name)).Value()
}

// Len returns the number of tags.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.T)
}

// MarshalJSON renders the tags as a JSON array of arrays.
func (t *T) MarshalJSON() ([]byte, error) {
	if t == nil || t.T == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, tt := range t.T {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := tt.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON array of arrays into the tag list.
func (t *T) UnmarshalJSON(b []byte) error {
	var raw []*tag.T
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.T = raw
	return nil
}
