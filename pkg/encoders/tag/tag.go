// Package tag implements a single Nostr-style tag: an ordered list of
// strings whose first element names the tag (e.g. "d", "s", "p", "e",
// "method").
package tag

import "encoding/json"

func marshalStrings(fields []string) ([]byte, error) {
	if fields == nil {
		fields = []string{}
	}
	return json.Marshal(fields)
}

func unmarshalStrings(b []byte) ([]string, error) {
	var fields []string
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// T is one tag: an ordered slice of fields, Field[0] is the tag name.
type T struct {
	Field []string
}

// toString converts a mixed string/[]byte argument to a string; used so
// call sites can write tag.New("p", pubkeyBytes) or tag.New([]byte("p"), "x")
// interchangeably.
func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}

// New builds a tag from any mix of strings and byte slices.
func New(fields ...any) *T {
	t := &T{Field: make([]string, 0, len(fields))}
	for _, f := range fields {
		t.Field = append(t.Field, toString(f))
	}
	return t
}

// NewFromStrings builds a tag directly from a string slice.
func NewFromStrings(fields ...string) *T {
	return &T{Field: append([]string(nil), fields...)}
}

// Name returns the tag's first field, or "" if empty.
func (t *T) Name() string {
	if t == nil || len(t.Field) == 0 {
		return ""
	}
	return t.Field[0]
}

// Value returns the tag's second field, or "" if absent.
func (t *T) Value() string {
	if t == nil || len(t.Field) < 2 {
		return ""
	}
	return t.Field[1]
}

// Len returns the number of fields.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Field)
}

// ToStringSlice returns the raw fields.
func (t *T) ToStringSlice() []string {
	if t == nil {
		return nil
	}
	return t.Field
}

// ToSliceOfBytes returns the raw fields as byte slices.
func (t *T) ToSliceOfBytes() [][]byte {
	if t == nil {
		return nil
	}
	out := make([][]byte, len(t.Field))
	for i, f := range t.Field {
		out[i] = []byte(f)
	}
	return out
}

// Equal reports whether two tags have identical fields.
func (t *T) Equal(o *T) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.Field) != len(o.Field) {
		return false
	}
	for i := range t.Field {
		if t.Field[i] != o.Field[i] {
			return false
		}
	}
	return true
}

// MarshalJSON renders the tag as a JSON array of strings.
func (t *T) MarshalJSON() ([]byte, error) {
	return marshalStrings(t.Field)
}

// UnmarshalJSON parses a JSON array of strings into the tag.
func (t *T) UnmarshalJSON(b []byte) error {
	fields, err := unmarshalStrings(b)
	if err != nil {
		return err
	}
	t.Field = fields
	return nil
}
