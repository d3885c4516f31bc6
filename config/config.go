// Package config loads the aggregator's configuration table using
// go-simpler.org/env struct tags: environment variables first, then an
// optional .env override file under an XDG config directory, with the
// relay set and private-server list taking comma-separated/JSON forms
// since env vars carry no native structure.
package config

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"relaycap.dev/pkg/apperrors"
)

// PrivateServer is one discovery.privateServers[] entry.
type PrivateServer struct {
	ProviderPubkey     string `json:"providerPubkey"`
	ServerID           string `json:"serverId,omitempty"`
	SupportsEncryption bool   `json:"supportsEncryption,omitempty"`
}

// C holds the full configuration table. It only defines and validates
// the struct and offers an env-var convenience loader; any YAML/CLI
// wizard layer for producing these values lives outside this package.
type C struct {
	AppName  string `env:"RELAYCAP_APP_NAME" default:"relaycap"`
	Config   string `env:"RELAYCAP_CONFIG_DIR" usage:"configuration directory, holding an optional .env override" default:"~/.config/relaycap"`

	NostrPrivateKey string   `env:"RELAYCAP_NOSTR_PRIVATE_KEY" usage:"64-hex identity secret"`
	NostrRelayURLs  []string `env:"RELAYCAP_NOSTR_RELAY_URLS" usage:"initial relay set, ws:// or wss:// URLs (comma separated)" default:"wss://relay.damus.io"`

	MCPName    string `env:"RELAYCAP_MCP_NAME" usage:"local endpoint name presented to hosts" default:"relaycap"`
	MCPVersion string `env:"RELAYCAP_MCP_VERSION" usage:"local endpoint version presented to hosts" default:"0.1.0"`
	MCPAbout   string `env:"RELAYCAP_MCP_ABOUT" usage:"local endpoint description presented to hosts"`

	NWCConnectionString string `env:"RELAYCAP_NWC_CONNECTION_STRING" usage:"nostr+walletconnect:// URI; enables payment-required handling"`

	WhitelistAllowedDVMs []string `env:"RELAYCAP_WHITELIST_ALLOWED_DVMS" usage:"hex pubkeys; if non-empty, drop all other providers"`

	DiscoveryLimit           int    `env:"RELAYCAP_DISCOVERY_LIMIT" usage:"caps announcement query size, 0 means unbounded"`
	DiscoveryPrivateServers  string `env:"RELAYCAP_DISCOVERY_PRIVATE_SERVERS" usage:"JSON array of {providerPubkey,serverId,supportsEncryption}, triggers the private handshake path"`

	FeatureFlagsInteractive bool `env:"RELAYCAP_INTERACTIVE" default:"false" usage:"register built-in tools; relay set may be empty"`

	EncryptionMode string `env:"RELAYCAP_ENCRYPTION_MODE" default:"optional" usage:"disabled, optional, or required" enum:"disabled,optional,required"`
}

// New loads configuration from the environment, then from a .env
// override file at Config/.env if one exists: env first to discover
// the config dir, then the file, then env reloaded so real environment
// variables always win.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, apperrors.Errorf(apperrors.ErrConfig, "load environment: %v", err)
	}
	if cfg.Config == "" || strings.Contains(cfg.Config, "~") {
		cfg.Config = filepath.Join(xdg.ConfigHome, cfg.AppName)
	}
	envPath := filepath.Join(cfg.Config, ".env")
	if src, ok := loadDotenv(envPath); ok {
		if err = env.Load(cfg, &env.Options{SliceSep: ",", Source: src}); err != nil {
			return nil, apperrors.Errorf(apperrors.ErrConfig, "load %s: %v", envPath, err)
		}
		if err = env.Load(cfg, &env.Options{SliceSep: ","}); err != nil {
			return nil, apperrors.Errorf(apperrors.ErrConfig, "reload environment: %v", err)
		}
	}
	return cfg, nil
}

// dotenvSource adapts a parsed .env file to go-simpler.org/env's Source
// interface.
type dotenvSource struct{ pairs []string }

func (s dotenvSource) Environ() []string { return s.pairs }

// loadDotenv parses a simple KEY=VALUE-per-line file, skipping blank
// lines and '#' comments. Returns ok=false if the file doesn't exist.
func loadDotenv(path string) (dotenvSource, bool) {
	f, err := os.Open(path)
	if err != nil {
		return dotenvSource{}, false
	}
	defer f.Close()
	var pairs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "=") {
			pairs = append(pairs, line)
		}
	}
	return dotenvSource{pairs: pairs}, true
}

// PrivateServers parses DiscoveryPrivateServers into its structured
// form. Returns nil, nil when the field is empty.
func (c *C) PrivateServers() ([]PrivateServer, error) {
	if strings.TrimSpace(c.DiscoveryPrivateServers) == "" {
		return nil, nil
	}
	var out []PrivateServer
	if err := json.Unmarshal([]byte(c.DiscoveryPrivateServers), &out); err != nil {
		return nil, apperrors.Errorf(apperrors.ErrConfig, "malformed discovery.privateServers: %v", err)
	}
	return out, nil
}

// Validate checks the required invariants: a private key must be
// present, and every relay URL must use a websocket scheme.
func (c *C) Validate() error {
	if strings.TrimSpace(c.NostrPrivateKey) == "" {
		return apperrors.Errorf(apperrors.ErrConfig, "nostr.privateKey is required")
	}
	if !c.FeatureFlagsInteractive && len(c.NostrRelayURLs) == 0 {
		return apperrors.Errorf(apperrors.ErrConfig, "nostr.relayUrls must be non-empty unless featureFlags.interactive is set")
	}
	for _, u := range c.NostrRelayURLs {
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return apperrors.Errorf(apperrors.ErrConfig, "relay url %q must start with ws:// or wss://", u)
		}
	}
	switch c.EncryptionMode {
	case "disabled", "optional", "required":
	default:
		return apperrors.Errorf(apperrors.ErrConfig, "encryption.mode %q must be one of disabled, optional, required", c.EncryptionMode)
	}
	return nil
}
