// Package payment pays a lightning invoice through a wallet's NIP-47
// (Nostr Wallet Connect) RPC, invoked when a provider demands payment
// mid-execution. Requests and responses correlate by the `#e` filter
// tag, with content encrypted under NIP-44 (the upstream nip44 package);
// the `nostr+walletconnect://pubkey?relay=...&secret=...` connection
// string is parsed with net/url.
package payment

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr/nip44"

	"relaycap.dev/pkg/crypto/keys"
	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/encoders/kind"
	"relaycap.dev/pkg/encoders/tag"
	"relaycap.dev/pkg/encoders/tag/tags"
	"relaycap.dev/pkg/relaypool"
	"relaycap.dev/pkg/utils/chk"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

// InvoiceTimeout bounds how long Pay waits for the wallet's response.
const InvoiceTimeout = 60 * time.Second

// Handler pays invoices via a single configured NWC wallet connection.
type Handler struct {
	pool         *relaypool.Pool
	clientSigner *keys.Signer
	walletPubkey []byte
}

// ParseURI parses a `nostr+walletconnect://` connection string into its
// wallet pubkey, relay set, and client secret.
func ParseURI(uri string) (walletPubkey []byte, relays []string, clientSecret []byte, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("payment: parse connection string: %w", err)
	}
	if u.Scheme != "nostr+walletconnect" {
		return nil, nil, nil, fmt.Errorf("payment: unexpected scheme %q", u.Scheme)
	}
	if walletPubkey, err = hex.Dec(u.Host); err != nil {
		return nil, nil, nil, fmt.Errorf("payment: invalid wallet pubkey: %w", err)
	}
	q := u.Query()
	relays = q["relay"]
	if len(relays) == 0 {
		return nil, nil, nil, fmt.Errorf("payment: connection string has no relay parameter")
	}
	secret := q.Get("secret")
	if secret == "" {
		return nil, nil, nil, fmt.Errorf("payment: connection string has no secret parameter")
	}
	if clientSecret, err = hex.Dec(secret); err != nil {
		return nil, nil, nil, fmt.Errorf("payment: invalid client secret: %w", err)
	}
	return walletPubkey, relays, clientSecret, nil
}

// New builds a Handler from a parsed nwc.connectionString. Its own
// relaypool.Pool is separate from the aggregator's main pool, since a
// wallet service often lives on different relays than discovery
// providers.
func New(ctx context.T, connectionString string) (*Handler, error) {
	walletPubkey, relays, clientSecret, err := ParseURI(connectionString)
	if err != nil {
		return nil, err
	}
	sgn := &keys.Signer{}
	if err = sgn.InitSec(clientSecret); err != nil {
		return nil, fmt.Errorf("payment: init client signer: %w", err)
	}
	h := &Handler{
		pool:         relaypool.New(ctx, relays),
		clientSigner: sgn,
		walletPubkey: walletPubkey,
	}
	h.probeWalletServiceInfo(ctx)
	return h, nil
}

// probeWalletServiceInfo fetches the wallet's kind-13194 capability
// advertisement as a non-fatal startup check, logging a warning if
// pay_invoice isn't among its advertised capabilities or the info event
// is absent entirely.
func (h *Handler) probeWalletServiceInfo(ctx context.T) {
	ctx, cancel := context.Timeout(ctx, 5*time.Second)
	defer cancel()
	f := filter.New().WithKinds(kind.WalletInfo).WithAuthors(h.walletPubkey).WithLimit(1)
	events, err := h.pool.Query(ctx, f)
	if chk.D(err) || len(events) == 0 {
		log.W.F("payment: no wallet service info found for %s", hex.Enc(h.walletPubkey))
		return
	}
	if !strings.Contains(events[0].Content, "pay_invoice") {
		log.W.F("payment: wallet service at %s does not advertise pay_invoice", hex.Enc(h.walletPubkey))
		return
	}
	log.D.F("payment: wallet service info: %s", events[0].Content)
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type rpcResponse struct {
	ResultType string          `json:"result_type"`
	Error      *rpcError       `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pay pays invoice, blocking until the wallet responds or InvoiceTimeout
// elapses. Returns the preimage on success.
func (h *Handler) Pay(ctx context.T, invoice string) (preimage string, err error) {
	ctx, cancel := context.Timeout(ctx, InvoiceTimeout)
	defer cancel()

	convKey, err := nip44.GenerateConversationKey(hex.Enc(h.clientSigner.Sec()), hex.Enc(h.walletPubkey))
	if err != nil {
		return "", fmt.Errorf("payment: derive conversation key: %w", err)
	}
	reqBody, err := json.Marshal(rpcRequest{Method: "pay_invoice", Params: map[string]string{"invoice": invoice}})
	if err != nil {
		return "", fmt.Errorf("payment: marshal request: %w", err)
	}
	ciphertext, err := nip44.Encrypt(string(reqBody), convKey)
	if err != nil {
		return "", fmt.Errorf("payment: encrypt request: %w", err)
	}

	req := &event.E{Tags: tags.New(tag.New("p", hex.Enc(h.walletPubkey))), Content: ciphertext, Kind: kind.New(kind.WalletRequest)}
	if err = req.Sign(h.clientSigner); err != nil {
		return "", fmt.Errorf("payment: sign request: %w", err)
	}

	resultCh := make(chan rpcResponse, 1)
	f := filter.New().WithKinds(kind.WalletResponse).WithAuthors(h.walletPubkey).WithTag("e", hex.Enc(req.ID))
	sub := h.pool.Subscribe(ctx, f, func(ev *event.E) {
		plain, derr := nip44.Decrypt(ev.Content, convKey)
		if derr != nil {
			return
		}
		var resp rpcResponse
		if derr = json.Unmarshal([]byte(plain), &resp); derr != nil {
			return
		}
		select {
		case resultCh <- resp:
		default:
		}
	}, nil, nil)
	defer sub.Close()

	if err = h.pool.Publish(ctx, req); err != nil {
		return "", fmt.Errorf("payment: publish pay_invoice request: %w", err)
	}

	select {
	case resp := <-resultCh:
		if resp.Error != nil {
			return "", fmt.Errorf("payment: %s: %s", resp.Error.Code, resp.Error.Message)
		}
		var result struct {
			Preimage string `json:"preimage"`
		}
		if err = json.Unmarshal(resp.Result, &result); err != nil {
			return "", fmt.Errorf("payment: parse pay_invoice result: %w", err)
		}
		return result.Preimage, nil
	case <-ctx.Done():
		return "", fmt.Errorf("payment: timed out waiting for wallet response: %w", ctx.Err())
	}
}

// Close tears down the handler's relay connections.
func (h *Handler) Close() { h.pool.Close() }
