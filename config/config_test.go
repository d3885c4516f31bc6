package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiresPrivateKey(t *testing.T) {
	cfg := &C{EncryptionMode: "optional", NostrRelayURLs: []string{"wss://relay.example"}}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "privateKey")
}

func TestValidateRejectsBadRelayScheme(t *testing.T) {
	cfg := &C{
		NostrPrivateKey: "deadbeef",
		NostrRelayURLs:  []string{"http://relay.example"},
		EncryptionMode:  "optional",
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ws://")
}

func TestValidateAllowsEmptyRelaysInInteractiveMode(t *testing.T) {
	cfg := &C{
		NostrPrivateKey:         "deadbeef",
		FeatureFlagsInteractive: true,
		EncryptionMode:          "optional",
	}
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownEncryptionMode(t *testing.T) {
	cfg := &C{
		NostrPrivateKey: "deadbeef",
		NostrRelayURLs:  []string{"wss://relay.example"},
		EncryptionMode:  "maybe",
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "encryption.mode")
}

func TestPrivateServersParsesJSON(t *testing.T) {
	cfg := &C{DiscoveryPrivateServers: `[{"providerPubkey":"abc","serverId":"srv1","supportsEncryption":true}]`}
	servers, err := cfg.PrivateServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, "abc", servers[0].ProviderPubkey)
	require.True(t, servers[0].SupportsEncryption)
}

func TestPrivateServersEmptyReturnsNil(t *testing.T) {
	cfg := &C{}
	servers, err := cfg.PrivateServers()
	require.NoError(t, err)
	require.Nil(t, servers)
}

func TestPrivateServersMalformedJSON(t *testing.T) {
	cfg := &C{DiscoveryPrivateServers: `not json`}
	_, err := cfg.PrivateServers()
	require.Error(t, err)
}
