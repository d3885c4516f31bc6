package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyWhitelistAllowsEveryone(t *testing.T) {
	var w Whitelist
	require.True(t, w.Allows("anyone"))
}

func TestWhitelistRestrictsToListedPubkeys(t *testing.T) {
	w := NewWhitelist("abc123", "def456")
	require.True(t, w.Allows("abc123"))
	require.True(t, w.Allows("def456"))
	require.False(t, w.Allows("notlisted"))
}
