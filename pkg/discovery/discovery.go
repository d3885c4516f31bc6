// Package discovery queries the relay pool for announcement kinds,
// partitions the result by kind, and registers capabilities in
// dependency order (servers before the lists that reference them),
// optionally continuing as a live subscription.
package discovery

import (
	"encoding/json"
	"strings"

	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/encoders/kind"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/relaypool"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

// Whitelist restricts accepted providers by hex pubkey. An empty
// whitelist allows everyone.
type Whitelist map[string]bool

// NewWhitelist builds a Whitelist from a set of hex-encoded pubkeys.
func NewWhitelist(pubkeysHex ...string) Whitelist {
	w := make(Whitelist, len(pubkeysHex))
	for _, p := range pubkeysHex {
		w[p] = true
	}
	return w
}

// Allows reports whether pubkeyHex may be registered.
func (w Whitelist) Allows(pubkeyHex string) bool {
	if len(w) == 0 {
		return true
	}
	return w[pubkeyHex]
}

// templatesMarker is the d-tag substring that routes a resources-list
// event to the resource-template registry instead of the resource one.
const templatesMarker = "resources/templates/list"

// Loop is the Discovery Loop.
type Loop struct {
	pool      *relaypool.Pool
	regs      *registry.Set
	whitelist Whitelist
	limit     int
}

// New builds a Loop. limit <= 0 means no query limit.
func New(pool *relaypool.Pool, regs *registry.Set, whitelist Whitelist, limit int) *Loop {
	return &Loop{pool: pool, regs: regs, whitelist: whitelist, limit: limit}
}

func (l *Loop) discoveryFilter() *filter.F {
	f := filter.New().WithKinds(kind.DiscoveryKinds...)
	if l.limit > 0 {
		f = f.WithLimit(l.limit)
	}
	return f
}

// Run performs one discovery pass: query, partition by kind, register in
// dependency order. since is never set on the query, since addressable
// semantics already serve only the latest per key.
func (l *Loop) Run(ctx context.T) error {
	events, err := l.pool.Query(ctx, l.discoveryFilter())
	if err != nil {
		return err
	}
	l.process(events)
	return nil
}

// Subscribe continues discovery live: newly arriving announcements flow
// through the same classifier as they arrive. Caller owns the returned
// Subscription and must Close it.
func (l *Loop) Subscribe(ctx context.T) *relaypool.Subscription {
	return l.pool.Subscribe(ctx, l.discoveryFilter(), func(ev *event.E) {
		l.process([]*event.E{ev})
	}, nil, nil)
}

// process partitions events by kind and registers them in the order
// servers -> tools -> resources -> prompts.
func (l *Loop) process(events []*event.E) {
	var servers, tools, resources, prompts []*event.E
	for _, ev := range events {
		if ev.Kind == nil {
			continue
		}
		switch {
		case ev.Kind.Equal(kind.ServerAnnouncement):
			servers = append(servers, ev)
		case ev.Kind.Equal(kind.ToolsList):
			tools = append(tools, ev)
		case ev.Kind.Equal(kind.ResourcesList):
			resources = append(resources, ev)
		case ev.Kind.Equal(kind.PromptsList):
			prompts = append(prompts, ev)
		}
	}
	for _, ev := range servers {
		l.processServer(ev)
	}
	for _, ev := range tools {
		l.processTools(ev)
	}
	for _, ev := range resources {
		l.processResources(ev)
	}
	for _, ev := range prompts {
		l.processPrompts(ev)
	}
}

func (l *Loop) allowed(ev *event.E) bool {
	if l.whitelist.Allows(hex.Enc(ev.Pubkey)) {
		return true
	}
	log.D.F("discovery: dropping event from non-whitelisted provider %s", hex.Enc(ev.Pubkey))
	return false
}

func (l *Loop) processServer(ev *event.E) {
	if !l.allowed(ev) {
		return
	}
	serverID := ev.Tags.GetFirstTagValue("d")
	if serverID == "" {
		log.W.F("discovery: server announcement from %s missing d tag, skipping", hex.Enc(ev.Pubkey))
		return
	}
	supportsEnc := ev.Tags.GetFirstTagValue("support_encryption") == "true"
	l.regs.Servers.Register(serverID, ev.Pubkey, ev.Content, supportsEnc)
}

func (l *Loop) processTools(ev *event.E) {
	if !l.allowed(ev) {
		return
	}
	serverID := ev.Tags.GetFirstTagValue("s")
	if serverID == "" {
		log.W.F("discovery: tools list from %s missing s tag, skipping", hex.Enc(ev.Pubkey))
		return
	}
	var payload struct {
		Tools []capability.ToolDef `json:"tools"`
	}
	if err := json.Unmarshal([]byte(ev.Content), &payload); err != nil {
		log.W.F("discovery: malformed tools list from %s: %v", hex.Enc(ev.Pubkey), err)
		return
	}
	providerHex := hex.Enc(ev.Pubkey)
	for i := range payload.Tools {
		t := payload.Tools[i]
		id := capability.MakeID(t.Name, providerHex)
		l.regs.Tools.Register(id, &capability.Info{
			ID: id, Kind: capability.Tool,
			ProviderPubkey: ev.Pubkey, ServerID: serverID,
			Tool: &t,
		})
	}
}

func (l *Loop) processResources(ev *event.E) {
	if !l.allowed(ev) {
		return
	}
	serverID := ev.Tags.GetFirstTagValue("s")
	if serverID == "" {
		log.W.F("discovery: resources list from %s missing s tag, skipping", hex.Enc(ev.Pubkey))
		return
	}
	providerHex := hex.Enc(ev.Pubkey)
	d := ev.Tags.GetFirstTagValue("d")
	if strings.Contains(d, templatesMarker) {
		var payload struct {
			ResourceTemplates []capability.ResourceTemplateDef `json:"resourceTemplates"`
		}
		if err := json.Unmarshal([]byte(ev.Content), &payload); err != nil {
			log.W.F("discovery: malformed resource templates list from %s: %v", hex.Enc(ev.Pubkey), err)
			return
		}
		for i := range payload.ResourceTemplates {
			t := payload.ResourceTemplates[i]
			id := capability.MakeID(t.Name, providerHex)
			l.regs.ResourceTemplates.Register(id, &capability.Info{
				ID: id, Kind: capability.ResourceTemplate,
				ProviderPubkey: ev.Pubkey, ServerID: serverID,
				Template: &t,
			})
		}
		return
	}

	var payload struct {
		Resources []capability.ResourceDef `json:"resources"`
	}
	if err := json.Unmarshal([]byte(ev.Content), &payload); err != nil {
		log.W.F("discovery: malformed resources list from %s: %v", hex.Enc(ev.Pubkey), err)
		return
	}
	for i := range payload.Resources {
		r := payload.Resources[i]
		id := capability.MakeID(r.Name, providerHex)
		l.regs.Resources.Register(id, &capability.Info{
			ID: id, Kind: capability.Resource,
			ProviderPubkey: ev.Pubkey, ServerID: serverID,
			Resource: &r,
		})
	}
}

func (l *Loop) processPrompts(ev *event.E) {
	if !l.allowed(ev) {
		return
	}
	serverID := ev.Tags.GetFirstTagValue("s")
	if serverID == "" {
		log.W.F("discovery: prompts list from %s missing s tag, skipping", hex.Enc(ev.Pubkey))
		return
	}
	var payload struct {
		Prompts []capability.PromptDef `json:"prompts"`
	}
	if err := json.Unmarshal([]byte(ev.Content), &payload); err != nil {
		log.W.F("discovery: malformed prompts list from %s: %v", hex.Enc(ev.Pubkey), err)
		return
	}
	providerHex := hex.Enc(ev.Pubkey)
	for i := range payload.Prompts {
		p := payload.Prompts[i]
		id := capability.MakeID(p.Name, providerHex)
		l.regs.Prompts.Register(id, &capability.Info{
			ID: id, Kind: capability.Prompt,
			ProviderPubkey: ev.Pubkey, ServerID: serverID,
			Prompt: &p,
		})
	}
}
