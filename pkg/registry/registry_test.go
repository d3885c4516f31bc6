package registry

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"relaycap.dev/pkg/capability"
)

func TestRegisterGetList(t *testing.T) {
	r := New(capability.Tool)
	info := &capability.Info{ID: "echo_abcd", Kind: capability.Tool, Tool: &capability.ToolDef{Name: "echo"}}
	r.Register("echo_abcd", info)

	require.Equal(t, info, r.Get("echo_abcd"))
	require.Nil(t, r.Get("missing"))
	require.Len(t, r.List(), 1)
	require.Equal(t, 1, r.Len())
}

func TestRegisterOverwriteTearsDownPriorSurface(t *testing.T) {
	r := New(capability.Tool)
	var torndown int
	r.SetSurfaceFunc(func(id string, info *capability.Info) SurfaceHandle {
		return func() { torndown++ }
	})
	info := &capability.Info{ID: "t1", Kind: capability.Tool}
	r.Register("t1", info)
	require.Equal(t, 0, torndown)
	r.Register("t1", info)
	require.Equal(t, 1, torndown)
}

func TestRemoveTearsDownSurfaceAndReportsPresence(t *testing.T) {
	r := New(capability.Tool)
	var torndown bool
	r.SetSurfaceFunc(func(id string, info *capability.Info) SurfaceHandle {
		return func() { torndown = true }
	})
	r.Register("t1", &capability.Info{ID: "t1"})

	require.False(t, r.Remove("missing"))
	require.True(t, r.Remove("t1"))
	require.True(t, torndown)
	require.Nil(t, r.Get("t1"))
}

func TestRemoveByProvider(t *testing.T) {
	r := New(capability.Tool)
	r.Register("a", &capability.Info{ID: "a", ProviderPubkey: []byte("p1")})
	r.Register("b", &capability.Info{ID: "b", ProviderPubkey: []byte("p2")})
	r.Register("c", &capability.Info{ID: "c", ProviderPubkey: []byte("p1")})

	removed := r.RemoveByProvider([]byte("p1"))
	require.ElementsMatch(t, []string{"a", "c"}, removed)
	require.Equal(t, 1, r.Len())
	require.NotNil(t, r.Get("b"))
}

func TestRemoveByPattern(t *testing.T) {
	r := New(capability.Tool)
	r.Register("weather_abcd", &capability.Info{ID: "weather_abcd"})
	r.Register("weather_ef01", &capability.Info{ID: "weather_ef01"})
	r.Register("other_abcd", &capability.Info{ID: "other_abcd"})

	removed := r.RemoveByPattern(regexp.MustCompile(`^weather_`))
	require.ElementsMatch(t, []string{"weather_abcd", "weather_ef01"}, removed)
	require.Equal(t, 1, r.Len())
}

func TestExecuteWithoutCallbackErrors(t *testing.T) {
	r := New(capability.Tool)
	_, err := r.Execute("anything", nil)
	require.Error(t, err)
}

func TestExecuteDelegatesToCallback(t *testing.T) {
	r := New(capability.Tool)
	r.SetExecutionCallback(func(id string, params []byte) ([]byte, error) {
		return []byte(id), nil
	})
	out, err := r.Execute("echo_abcd", nil)
	require.NoError(t, err)
	require.Equal(t, "echo_abcd", string(out))
}

func TestClearTearsDownEverySurface(t *testing.T) {
	r := New(capability.Tool)
	var torndown int
	r.SetSurfaceFunc(func(id string, info *capability.Info) SurfaceHandle {
		return func() { torndown++ }
	})
	r.Register("a", &capability.Info{ID: "a"})
	r.Register("b", &capability.Info{ID: "b"})
	r.Clear()
	require.Equal(t, 2, torndown)
	require.Equal(t, 0, r.Len())
}
