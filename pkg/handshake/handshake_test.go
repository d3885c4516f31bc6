package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaycap.dev/pkg/encoders/event"
)

func TestBodyOfUnwrapsBareShape(t *testing.T) {
	ev := &event.E{Content: `{"tools":[{"name":"echo"}]}`}
	require.JSONEq(t, `{"tools":[{"name":"echo"}]}`, string(bodyOf(ev)))
}

func TestBodyOfUnwrapsResultWrapper(t *testing.T) {
	ev := &event.E{Content: `{"result":{"tools":[{"name":"echo"}]}}`}
	require.JSONEq(t, `{"tools":[{"name":"echo"}]}`, string(bodyOf(ev)))
}

func TestStateConstantsAreDistinct(t *testing.T) {
	all := []State{Idle, InitiateSent, Initialized, ListsFetched, Registered, Failed}
	seen := map[State]bool{}
	for _, s := range all {
		require.False(t, seen[s], "duplicate state value %q", s)
		seen[s] = true
	}
}
