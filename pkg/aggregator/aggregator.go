// Package aggregator wires the discovery aggregator's components
// together: signer, relay pool, encryption engine, event publisher,
// registries, discovery loop, private handshake, executors, payment
// handler, and the local CAP-RPC endpoint, driven by config.C. It also
// implements endpoint.Discoverer so the endpoint package keeps no
// direct dependency on the relay pool.
package aggregator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"relaycap.dev/config"
	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/crypto/encryption"
	"relaycap.dev/pkg/crypto/keys"
	"relaycap.dev/pkg/discovery"
	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/endpoint"
	"relaycap.dev/pkg/executor"
	"relaycap.dev/pkg/handshake"
	"relaycap.dev/pkg/payment"
	"relaycap.dev/pkg/publisher"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/relaypool"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

// Aggregator owns every component's lifetime and exposes the Local
// CAP-RPC Endpoint to a host process.
type Aggregator struct {
	cfg    *config.C
	signer *keys.Signer
	pool   *relaypool.Pool
	engine *encryption.Engine
	pub    *publisher.Publisher
	regs   *registry.Set

	discoveryLoop *discovery.Loop
	paymentH      *payment.Handler

	base        *executor.Base
	tools       *executor.ToolExecutor
	resources   *executor.ResourceExecutor
	prompts     *executor.PromptExecutor
	completions *executor.CompletionExecutor
	ping        *executor.PingExecutor

	Endpoint *endpoint.Endpoint

	mu           sync.Mutex
	liveDiscover *relaypool.Subscription
}

// New builds every component per cfg. Building the relay pool starts
// dialing the configured relays, and a configured NWC wallet is probed
// for its service info; discovery and private handshakes start only
// when Run is called.
func New(ctx context.T, cfg *config.C) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sgn := &keys.Signer{}
	secBytes, err := hex.Dec(cfg.NostrPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("aggregator: decode nostr.privateKey: %w", err)
	}
	if err = sgn.InitSec(secBytes); err != nil {
		return nil, fmt.Errorf("aggregator: init signer: %w", err)
	}

	pool := relaypool.New(ctx, cfg.NostrRelayURLs)
	engine := encryption.New(encryption.Mode(cfg.EncryptionMode))
	pub := publisher.New(pool, engine, sgn)
	regs := registry.NewSet()

	var whitelist discovery.Whitelist
	if len(cfg.WhitelistAllowedDVMs) > 0 {
		whitelist = discovery.NewWhitelist(cfg.WhitelistAllowedDVMs...)
	}
	loop := discovery.New(pool, regs, whitelist, cfg.DiscoveryLimit)

	var paymentH *payment.Handler
	if strings.TrimSpace(cfg.NWCConnectionString) != "" {
		paymentH, err = payment.New(ctx, cfg.NWCConnectionString)
		if err != nil {
			log.W.F("aggregator: nwc wallet unavailable, payment-required tools will fail: %v", err)
			paymentH = nil
		}
	}

	base := executor.New(sgn, pool, engine, pub, regs.Servers, paymentH)
	tools := executor.NewToolExecutor(base, regs.Tools)
	resources := executor.NewResourceExecutor(base, regs.Resources, regs.ResourceTemplates)
	prompts := executor.NewPromptExecutor(base, regs.Prompts)
	completions := executor.NewCompletionExecutor(base, regs.Prompts, regs.Resources, regs.Servers)
	ping := executor.NewPingExecutor(base)

	a := &Aggregator{
		cfg: cfg, signer: sgn, pool: pool, engine: engine, pub: pub, regs: regs,
		discoveryLoop: loop, paymentH: paymentH,
		base: base, tools: tools, resources: resources, prompts: prompts, completions: completions, ping: ping,
	}

	info := endpoint.Info{Name: cfg.MCPName, Version: cfg.MCPVersion, About: cfg.MCPAbout}
	a.Endpoint = endpoint.New(info, regs, tools, resources, prompts, completions, ping, cfg.FeatureFlagsInteractive, a)

	return a, nil
}

// Run performs the initial discovery query, fans out private
// handshakes for every configured private server, then continues
// discovery as a live subscription until ctx is done.
func (a *Aggregator) Run(ctx context.T) error {
	if err := a.discoveryLoop.Run(ctx); err != nil {
		log.W.F("aggregator: initial discovery query failed: %v", err)
	}

	privateServers, err := a.cfg.PrivateServers()
	if err != nil {
		return err
	}
	if len(privateServers) > 0 {
		hs := handshake.New(a.signer, a.pool, a.engine, a.pub, a.regs, handshake.ClientInfo{Name: a.cfg.MCPName, Version: a.cfg.MCPVersion})
		var wg sync.WaitGroup
		for _, ps := range privateServers {
			pubkey, err := hex.Dec(ps.ProviderPubkey)
			if err != nil {
				log.W.F("aggregator: malformed private server pubkey %q: %v", ps.ProviderPubkey, err)
				continue
			}
			wg.Add(1)
			go func(ps config.PrivateServer, pubkey []byte) {
				defer wg.Done()
				state, err := hs.Run(ctx, handshake.PrivateServer{
					ProviderPubkey:     pubkey,
					ServerID:           ps.ServerID,
					SupportsEncryption: ps.SupportsEncryption,
				})
				if err != nil {
					log.W.F("aggregator: private handshake with %s failed (%s): %v", ps.ProviderPubkey, state, err)
				}
			}(ps, pubkey)
		}
		wg.Wait()
	}

	sub := a.discoveryLoop.Subscribe(ctx)
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

// Close releases every relay connection.
func (a *Aggregator) Close() {
	a.pool.Close()
	if a.paymentH != nil {
		a.paymentH.Close()
	}
}

// Discover implements endpoint.Discoverer for the built-in `discover`
// interactive tool: queries relay for announcement kinds, scores
// matches by keyword presence in name/description, and optionally
// integrates them by registering each matching tool, resource or prompt
// directly in the live registries (resource templates are neither
// scored nor integrated).
func (a *Aggregator) Discover(ctx context.T, relay string, keywords []string, integrate bool) ([]endpoint.ScoredCapability, error) {
	pool := a.pool
	if relay != "" {
		pool = relaypool.New(ctx, []string{relay})
		defer pool.Close()
	}
	scratch := registry.NewSet()
	loop := discovery.New(pool, scratch, nil, a.cfg.DiscoveryLimit)
	if err := loop.Run(ctx); err != nil {
		return nil, fmt.Errorf("aggregator: discover query failed: %w", err)
	}

	var out []endpoint.ScoredCapability
	collect := func(kindName string, ids map[string]*capability.Info) {
		for id, info := range ids {
			name, desc := "", ""
			switch {
			case info.Tool != nil:
				name, desc = info.Tool.Name, info.Tool.Description
			case info.Resource != nil:
				name, desc = info.Resource.Name, info.Resource.Description
			case info.Prompt != nil:
				name, desc = info.Prompt.Name, info.Prompt.Description
			}
			score := keywordScore(keywords, name, desc)
			if score <= 0 {
				continue
			}
			integrated := false
			if integrate {
				switch kindName {
				case "tool":
					a.regs.Tools.Register(id, info)
				case "resource":
					a.regs.Resources.Register(id, info)
				case "prompt":
					a.regs.Prompts.Register(id, info)
				}
				integrated = true
			}
			out = append(out, endpoint.ScoredCapability{
				ID: id, Kind: kindName, Name: name, Description: desc, Score: score, Integrated: integrated,
			})
		}
	}
	collect("tool", scratch.Tools.ListWithIDs())
	collect("resource", scratch.Resources.ListWithIDs())
	collect("prompt", scratch.Prompts.ListWithIDs())

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// keywordScore counts case-insensitive keyword hits across name and
// description; 0 means no match.
func keywordScore(keywords []string, name, description string) float64 {
	if len(keywords) == 0 {
		return 1
	}
	haystack := strings.ToLower(name + " " + description)
	var hits float64
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			hits++
		}
	}
	return hits
}
