package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerRegisterAndSupportsEncryption(t *testing.T) {
	r := NewServerRegistry()
	r.Register("srv1", []byte("provider1"), `{"capabilities":{"tools":{}}}`, true)

	require.True(t, r.SupportsEncryption("srv1"))
	require.False(t, r.SupportsCompletions("srv1"))
	require.False(t, r.SupportsEncryption("unknown"))
}

func TestServerRegisterDetectsCompletions(t *testing.T) {
	r := NewServerRegistry()
	r.Register("srv1", []byte("provider1"), `{"capabilities":{"completions":{}}}`, false)
	require.True(t, r.SupportsCompletions("srv1"))
}

func TestServerGetByProvider(t *testing.T) {
	r := NewServerRegistry()
	r.Register("srv1", []byte("provider1"), `{}`, false)
	found := r.GetByProvider([]byte("provider1"))
	require.NotNil(t, found)
	require.Equal(t, "srv1", found.ServerID)
	require.Nil(t, r.GetByProvider([]byte("nope")))
}

func TestServerRegisterReplacesNotDuplicates(t *testing.T) {
	r := NewServerRegistry()
	r.Register("srv1", []byte("provider1"), `{}`, false)
	r.Register("srv1", []byte("provider1"), `{"capabilities":{"completions":{}}}`, true)

	info := r.Get("srv1")
	require.True(t, info.SupportsEncryption)
	require.True(t, info.SupportsCompletions)
}

func TestServerRemoveByProvider(t *testing.T) {
	r := NewServerRegistry()
	r.Register("srv1", []byte("provider1"), `{}`, false)
	r.Register("srv2", []byte("provider1"), `{}`, false)
	r.Register("srv3", []byte("provider2"), `{}`, false)

	removed := r.RemoveByProvider([]byte("provider1"))
	require.ElementsMatch(t, []string{"srv1", "srv2"}, removed)
	require.Nil(t, r.Get("srv1"))
	require.NotNil(t, r.Get("srv3"))
}
