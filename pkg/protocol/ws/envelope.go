package ws

import (
	"encoding/json"
	"fmt"

	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
)

// Envelopes are plain JSON arrays whose first element is a label, e.g.
// ["EVENT", <sub-id>, <event>]. Request/response framing goes through
// encoding/json directly.

func encodeReq(subID string, f *filter.F) ([]byte, error) {
	return json.Marshal([]any{"REQ", subID, f})
}

func encodeClose(subID string) ([]byte, error) {
	return json.Marshal([]any{"CLOSE", subID})
}

func encodeEvent(ev *event.E) ([]byte, error) {
	return json.Marshal([]any{"EVENT", ev})
}

// inboundEnvelope holds the decoded label plus raw remaining fields.
type inboundEnvelope struct {
	Label string
	Parts []json.RawMessage
}

func decodeEnvelope(raw []byte) (*inboundEnvelope, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("ws: malformed envelope: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("ws: empty envelope")
	}
	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, fmt.Errorf("ws: envelope label: %w", err)
	}
	return &inboundEnvelope{Label: label, Parts: parts[1:]}, nil
}

func (e *inboundEnvelope) str(i int) (string, error) {
	if i >= len(e.Parts) {
		return "", fmt.Errorf("ws: envelope missing field %d", i)
	}
	var s string
	if err := json.Unmarshal(e.Parts[i], &s); err != nil {
		return "", err
	}
	return s, nil
}

func (e *inboundEnvelope) event(i int) (*event.E, error) {
	if i >= len(e.Parts) {
		return nil, fmt.Errorf("ws: envelope missing field %d", i)
	}
	ev := &event.E{}
	if err := ev.UnmarshalJSON(e.Parts[i]); err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *inboundEnvelope) boolAt(i int) (bool, error) {
	if i >= len(e.Parts) {
		return false, fmt.Errorf("ws: envelope missing field %d", i)
	}
	var b bool
	if err := json.Unmarshal(e.Parts[i], &b); err != nil {
		return false, err
	}
	return b, nil
}
