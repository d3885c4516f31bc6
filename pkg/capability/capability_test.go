package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeIDDisambiguatesByProvider(t *testing.T) {
	id1 := MakeID("echo", "aaaabbbbcccc")
	id2 := MakeID("echo", "ddddeeeeffff")
	require.NotEqual(t, id1, id2)
	require.Equal(t, "echo_aaaa", id1)
	require.Equal(t, "echo_dddd", id2)
}

func TestMakeIDShortPubkey(t *testing.T) {
	require.Equal(t, "echo_ab", MakeID("echo", "ab"))
}

func TestParseCapabilitiesDetectsCompletions(t *testing.T) {
	s := &ServerInfo{
		ServerID:            "srv1",
		AnnouncementContent: `{"capabilities":{"tools":{},"completions":{}}}`,
	}
	s.ParseCapabilities()
	require.True(t, s.SupportsCompletions)
	require.Contains(t, s.Capabilities, "tools")
}

func TestParseCapabilitiesWithoutCompletions(t *testing.T) {
	s := &ServerInfo{AnnouncementContent: `{"capabilities":{"tools":{}}}`}
	s.ParseCapabilities()
	require.False(t, s.SupportsCompletions)
}

func TestParseCapabilitiesMalformedContentDefaultsEmpty(t *testing.T) {
	s := &ServerInfo{AnnouncementContent: `not json`}
	s.ParseCapabilities()
	require.NotNil(t, s.Capabilities)
	require.Empty(t, s.Capabilities)
	require.False(t, s.SupportsCompletions)
}
