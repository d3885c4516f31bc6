package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaycap.dev/pkg/crypto/keys"
	"relaycap.dev/pkg/encoders/kind"
	"relaycap.dev/pkg/encoders/tag"
	"relaycap.dev/pkg/encoders/tag/tags"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	sgn := &keys.Signer{}
	require.NoError(t, sgn.Generate())

	ev := New()
	ev.Kind = kind.New(kind.Request)
	ev.Tags = tags.New(tag.New("method", "tools/call"))
	ev.Content = `{"method":"tools/call"}`

	require.NoError(t, ev.Sign(sgn))
	require.NotEmpty(t, ev.ID)
	require.NotEmpty(t, ev.Sig)

	valid, err := ev.Verify()
	require.NoError(t, err)
	require.True(t, valid)
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	sgn := &keys.Signer{}
	require.NoError(t, sgn.Generate())

	ev := New()
	ev.Kind = kind.New(kind.Request)
	ev.Content = "original"
	require.NoError(t, ev.Sign(sgn))

	ev.Content = "tampered"
	_, err := ev.Verify()
	require.Error(t, err)
}

func TestComputeIDExcludesSignature(t *testing.T) {
	sgn := &keys.Signer{}
	require.NoError(t, sgn.Generate())

	ev := New()
	ev.Kind = kind.New(kind.Request)
	ev.Content = "hello"
	ev.Pubkey = sgn.Pub()

	idBeforeSign, err := ev.ComputeID()
	require.NoError(t, err)

	require.NoError(t, ev.Sign(sgn))
	require.Equal(t, idBeforeSign, ev.ID)
}

func TestHasTag(t *testing.T) {
	ev := New()
	ev.Tags = tags.New(tag.New("e", "abc123"), tag.New("p", "deadbeef"))
	require.True(t, ev.HasTag("e", "abc123"))
	require.False(t, ev.HasTag("e", "nope"))
	require.False(t, ev.HasTag("missing", "abc123"))
}

func TestMarshalUnmarshalWireShape(t *testing.T) {
	sgn := &keys.Signer{}
	require.NoError(t, sgn.Generate())

	ev := New()
	ev.Kind = kind.New(kind.ToolsList)
	ev.Tags = tags.New(tag.New("d", "my-tool"))
	ev.Content = "content"
	require.NoError(t, ev.Sign(sgn))

	b, err := ev.MarshalJSON()
	require.NoError(t, err)

	var roundTripped E
	require.NoError(t, roundTripped.UnmarshalJSON(b))
	require.Equal(t, ev.ID, roundTripped.ID)
	require.Equal(t, ev.Pubkey, roundTripped.Pubkey)
	require.Equal(t, ev.Content, roundTripped.Content)
	require.Equal(t, ev.GetKindValue(), roundTripped.GetKindValue())
}
