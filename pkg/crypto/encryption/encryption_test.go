package encryption

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaycap.dev/pkg/crypto/keys"
	"relaycap.dev/pkg/encoders/event"
)

func newTestSigner(t *testing.T) *keys.Signer {
	t.Helper()
	s := &keys.Signer{}
	require.NoError(t, s.Generate())
	return s
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	engine := New(Required)
	sender := newTestSigner(t)
	recipient := newTestSigner(t)

	template := event.New()
	template.Content = "hello"

	giftWrap, err := engine.EncryptMessage(sender, recipient.Pub(), template)
	require.NoError(t, err)

	unwrapped, err := engine.Decrypt(giftWrap, recipient)
	require.NoError(t, err)
	require.NotNil(t, unwrapped)
	require.Equal(t, "hello", unwrapped.Inner.Content)
	require.Equal(t, sender.Pub(), unwrapped.SenderID)
}

// TestEncryptDecryptTwoSequentialExchanges guards against the tie-break
// dedup key colliding across distinct gift-wraps on a shared Engine -
// every rumor's ID is stripped before marshaling, so the dedup key must
// come from the gift-wrap's own signed ID rather than the inner event.
func TestEncryptDecryptTwoSequentialExchanges(t *testing.T) {
	engine := New(Required)
	sender := newTestSigner(t)
	recipient := newTestSigner(t)

	first := event.New()
	first.Content = "first message"
	firstWrap, err := engine.EncryptMessage(sender, recipient.Pub(), first)
	require.NoError(t, err)

	second := event.New()
	second.Content = "second message"
	secondWrap, err := engine.EncryptMessage(sender, recipient.Pub(), second)
	require.NoError(t, err)

	firstUnwrapped, err := engine.Decrypt(firstWrap, recipient)
	require.NoError(t, err)
	require.NotNil(t, firstUnwrapped, "first exchange must decrypt")
	require.Equal(t, "first message", firstUnwrapped.Inner.Content)

	secondUnwrapped, err := engine.Decrypt(secondWrap, recipient)
	require.NoError(t, err)
	require.NotNil(t, secondUnwrapped, "second exchange on the same engine must not be dropped by a stale tie-break key")
	require.Equal(t, "second message", secondUnwrapped.Inner.Content)
}

func TestDecryptRedundantDeliveryIsDropped(t *testing.T) {
	engine := New(Required)
	sender := newTestSigner(t)
	recipient := newTestSigner(t)

	template := event.New()
	template.Content = "hello"
	giftWrap, err := engine.EncryptMessage(sender, recipient.Pub(), template)
	require.NoError(t, err)

	first, err := engine.Decrypt(giftWrap, recipient)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := engine.Decrypt(giftWrap, recipient)
	require.NoError(t, err)
	require.Nil(t, second, "the same gift-wrap delivered twice must be claimed only once")
}
