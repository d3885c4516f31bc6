// Package handshake implements the private-server handshake: for each
// configured private server, an initialize request/response exchange
// followed by a notifications/initialized fire-and-forget and a
// parallel tools/resources/prompts list fetch, with encryption
// negotiation that degrades from wrapped to plaintext only when the
// configured mode allows it. Kept separate from the base executor since
// its response handling (single exchange per step, 2s bound, no
// payment/notification branching) doesn't fit that generic contract.
package handshake

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/crypto/encryption"
	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/encoders/kind"
	"relaycap.dev/pkg/encoders/tag"
	"relaycap.dev/pkg/encoders/tag/tags"
	"relaycap.dev/pkg/encoders/timestamp"
	"relaycap.dev/pkg/interfaces/signer"
	"relaycap.dev/pkg/publisher"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/relaypool"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

// protocolVersion is the CAP-RPC initialize handshake's advertised
// protocol version.
const protocolVersion = "2024-11-05"

// stepTimeout bounds a single request/response exchange.
const stepTimeout = 2 * time.Second

// State is one point in a private server's handshake lifecycle.
type State string

const (
	Idle         State = "idle"
	InitiateSent State = "initiate_sent"
	Initialized  State = "initialized"
	ListsFetched State = "lists_fetched"
	Registered   State = "registered"
	Failed       State = "failed"
)

// PrivateServer is one entry of config's discovery.privateServers[].
type PrivateServer struct {
	ProviderPubkey     []byte
	ServerID           string
	SupportsEncryption bool
}

// ClientInfo identifies this aggregator to a private server in the
// initialize request.
type ClientInfo struct {
	Name    string
	Version string
}

// Handshake drives the private-server initialization protocol.
type Handshake struct {
	signer     signer.I
	pool       *relaypool.Pool
	engine     *encryption.Engine
	publisher  *publisher.Publisher
	regs       *registry.Set
	clientInfo ClientInfo
}

// New builds a Handshake.
func New(sgn signer.I, pool *relaypool.Pool, engine *encryption.Engine, pub *publisher.Publisher, regs *registry.Set, clientInfo ClientInfo) *Handshake {
	return &Handshake{signer: sgn, pool: pool, engine: engine, publisher: pub, regs: regs, clientInfo: clientInfo}
}

// Run drives one private server through Idle -> ... -> Registered,
// collapsing to Failed(reason) on any step timeout without affecting
// sibling handshakes (callers fan Run out themselves, one goroutine per
// private server).
func (h *Handshake) Run(ctx context.T, ps PrivateServer) (State, error) {
	state := Idle

	initParams := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]string{"name": h.clientInfo.Name, "version": h.clientInfo.Version},
	}
	state = InitiateSent
	resp, err := h.send(ctx, "initialize", initParams, ps.ProviderPubkey, ps.ServerID, true)
	if err != nil {
		log.W.F("handshake: initialize failed for %s: %v", hex.Enc(ps.ProviderPubkey), err)
		return Failed, err
	}

	serverID := ps.ServerID
	if serverID == "" {
		serverID = resp.Tags.GetFirstTagValue("d")
	}
	supportsEnc := resp.Tags.GetFirstTagValue("support_encryption") == "true"
	h.regs.Servers.Register(serverID, ps.ProviderPubkey, resp.Content, supportsEnc)
	state = Initialized

	if err = h.notify(ctx, "notifications/initialized", map[string]any{}, ps.ProviderPubkey, serverID, supportsEnc); err != nil {
		log.W.F("handshake: notifications/initialized failed for %s: %v", serverID, err)
	}

	type listResult struct {
		method string
		resp   *event.E
		err    error
	}
	methods := []string{"tools/list", "resources/list", "prompts/list"}
	results := make([]listResult, len(methods))
	var wg sync.WaitGroup
	wg.Add(len(methods))
	for i, m := range methods {
		go func(i int, method string) {
			defer wg.Done()
			r, e := h.send(ctx, method, map[string]any{}, ps.ProviderPubkey, serverID, supportsEnc)
			results[i] = listResult{method: method, resp: r, err: e}
		}(i, m)
	}
	wg.Wait()
	state = ListsFetched

	providerHex := hex.Enc(ps.ProviderPubkey)
	for _, r := range results {
		if r.err != nil {
			log.W.F("handshake: %s failed for %s: %v", r.method, serverID, r.err)
			return Failed, fmt.Errorf("handshake: %s: %w", r.method, r.err)
		}
	}
	for _, r := range results {
		switch r.method {
		case "tools/list":
			registerTools(h.regs, r.resp, ps.ProviderPubkey, providerHex, serverID)
		case "resources/list":
			registerResources(h.regs, r.resp, ps.ProviderPubkey, providerHex, serverID)
		case "prompts/list":
			registerPrompts(h.regs, r.resp, ps.ProviderPubkey, providerHex, serverID)
		}
	}

	state = Registered
	return state, nil
}

func registerTools(regs *registry.Set, resp *event.E, providerPubkey []byte, providerHex, serverID string) {
	var payload struct {
		Tools []capability.ToolDef `json:"tools"`
	}
	if err := json.Unmarshal(bodyOf(resp), &payload); err != nil {
		log.W.F("handshake: malformed tools/list body: %v", err)
		return
	}
	for i := range payload.Tools {
		t := payload.Tools[i]
		id := capability.MakeID(t.Name, providerHex)
		regs.Tools.Register(id, &capability.Info{ID: id, Kind: capability.Tool, ProviderPubkey: providerPubkey, ServerID: serverID, Tool: &t})
	}
}

func registerResources(regs *registry.Set, resp *event.E, providerPubkey []byte, providerHex, serverID string) {
	var payload struct {
		Resources []capability.ResourceDef `json:"resources"`
	}
	if err := json.Unmarshal(bodyOf(resp), &payload); err != nil {
		log.W.F("handshake: malformed resources/list body: %v", err)
		return
	}
	for i := range payload.Resources {
		r := payload.Resources[i]
		id := capability.MakeID(r.Name, providerHex)
		regs.Resources.Register(id, &capability.Info{ID: id, Kind: capability.Resource, ProviderPubkey: providerPubkey, ServerID: serverID, Resource: &r})
	}
}

func registerPrompts(regs *registry.Set, resp *event.E, providerPubkey []byte, providerHex, serverID string) {
	var payload struct {
		Prompts []capability.PromptDef `json:"prompts"`
	}
	if err := json.Unmarshal(bodyOf(resp), &payload); err != nil {
		log.W.F("handshake: malformed prompts/list body: %v", err)
		return
	}
	for i := range payload.Prompts {
		p := payload.Prompts[i]
		id := capability.MakeID(p.Name, providerHex)
		regs.Prompts.Register(id, &capability.Info{ID: id, Kind: capability.Prompt, ProviderPubkey: providerPubkey, ServerID: serverID, Prompt: &p})
	}
}

// bodyOf unwraps a list response's content, accepting either the bare
// `{tools:[...]}` shape or a JSON-RPC-ish `{result:{tools:[...]}}`
// wrapper, since private servers vary on this.
func bodyOf(resp *event.E) []byte {
	var probe struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &probe); err == nil && len(probe.Result) > 0 {
		return probe.Result
	}
	return []byte(resp.Content)
}

// send builds a fresh request event, negotiates encryption, and blocks
// for a correlated response within stepTimeout.
func (h *Handshake) send(ctx context.T, method string, params any, providerPubkey []byte, serverID string, allowEncryption bool) (*event.E, error) {
	template := buildRequest(h.signer, providerPubkey, serverID, method, params)
	idBytes, err := template.ComputeID()
	if err != nil {
		return nil, fmt.Errorf("handshake: compute request id: %w", err)
	}
	execID := hex.Enc(idBytes)

	mode := h.engine.Mode()
	tryWrap := allowEncryption && mode != encryption.Disabled

	if tryWrap {
		resp, err := h.exchange(ctx, template, execID, providerPubkey, true)
		if err == nil {
			return resp, nil
		}
		if mode == encryption.Required {
			return nil, err
		}
		return h.exchange(ctx, template, execID, providerPubkey, false)
	}
	return h.exchange(ctx, template, execID, providerPubkey, false)
}

// notify is send's fire-and-forget counterpart for
// notifications/initialized, which expects no response.
func (h *Handshake) notify(ctx context.T, method string, params any, providerPubkey []byte, serverID string, allowEncryption bool) error {
	template := buildRequest(h.signer, providerPubkey, serverID, method, params)
	mode := h.engine.Mode()
	if allowEncryption && mode != encryption.Disabled {
		return h.publisher.Publish(ctx, template, publisher.Options{Encrypt: true, Recipient: providerPubkey})
	}
	if err := template.Sign(h.signer); err != nil {
		return err
	}
	return h.publisher.Publish(ctx, template, publisher.Options{})
}

// exchange publishes template (wrapped or plaintext, per wrap) and waits
// up to stepTimeout for a kind-26910 response correlated by execID.
func (h *Handshake) exchange(ctx context.T, template *event.E, execID string, providerPubkey []byte, wrap bool) (*event.E, error) {
	ctx, cancel := context.Timeout(ctx, stepTimeout)
	defer cancel()

	resultCh := make(chan *event.E, 1)
	var once sync.Once
	f := filter.New().WithKinds(kind.Response, kind.GiftWrap).WithSince(timestamp.Now())
	sub := h.pool.Subscribe(ctx, f, func(ev *event.E) {
		if ev.Kind != nil && ev.Kind.Equal(kind.GiftWrap) {
			unwrapped, err := h.engine.Decrypt(ev, h.signer)
			if err != nil || unwrapped == nil || !unwrapped.Inner.HasTag("e", execID) {
				return
			}
			once.Do(func() { resultCh <- unwrapped.Inner })
			return
		}
		if !ev.HasTag("e", execID) {
			return
		}
		once.Do(func() { resultCh <- ev })
	}, nil, nil)
	defer sub.Close()

	var err error
	if wrap {
		err = h.publisher.Publish(ctx, template, publisher.Options{Encrypt: true, Recipient: providerPubkey})
	} else {
		if err = template.Sign(h.signer); err != nil {
			return nil, fmt.Errorf("handshake: sign request: %w", err)
		}
		err = h.publisher.Publish(ctx, template, publisher.Options{})
	}
	if err != nil {
		return nil, fmt.Errorf("handshake: publish request: %w", err)
	}

	select {
	case ev := <-resultCh:
		return ev, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("handshake: step timed out: %w", ctx.Err())
	}
}

func buildRequest(sgn signer.I, providerPubkey []byte, serverID, method string, params any) *event.E {
	template := event.New()
	template.Kind = kind.New(kind.Request)
	template.Pubkey = sgn.Pub()
	tt := tags.New(tag.New("p", hex.Enc(providerPubkey)), tag.New("method", method))
	if serverID != "" {
		tt.Append(tag.New("s", serverID))
	}
	template.Tags = tt
	body, _ := json.Marshal(map[string]any{"method": method, "params": params})
	template.Content = string(body)
	return template
}
