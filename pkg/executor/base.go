// Package executor implements the base executor and the five
// per-capability executors built on it: the hard core of the system,
// correlating a signed request to its response across a noisy relay
// substrate, with transparent decryption, timeout, payment retries, and
// cancellation. Each capability kind is a thin wrapper supplying a
// method name and a params value, since the response-side parsing
// (error/isError/notification handling) is identical across kinds and
// lives here once.
package executor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"relaycap.dev/pkg/apperrors"
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
	"relaycap.dev/pkg/payment"
	"relaycap.dev/pkg/publisher"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/relaypool"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

// executionTimeout is the wall-clock bound for a single execute call,
// not reset by payment-required notifications.
const executionTimeout = 30 * time.Second

// outcome is what a pendingExec's single-shot resolver delivers.
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingExec is one outstanding execution. completion is single-shot:
// whichever of {resolve, reject, timeout, cancel} runs first wins, the
// rest no-op.
type pendingExec struct {
	id        string
	createdAt time.Time
	once      sync.Once
	resultCh  chan outcome
}

func newPendingExec(id string) *pendingExec {
	return &pendingExec{id: id, createdAt: time.Now(), resultCh: make(chan outcome, 1)}
}

func (p *pendingExec) complete(result json.RawMessage, err error) {
	p.once.Do(func() { p.resultCh <- outcome{result: result, err: err} })
}

// Base is the base executor, generic over whatever capability kind is
// passed to Execute. One Base is shared by every per-capability executor
// that is constructed over it (they differ only in method/params).
type Base struct {
	signer    signer.I
	pool      *relaypool.Pool
	engine    *encryption.Engine
	publisher *publisher.Publisher
	servers   *registry.ServerRegistry
	paymentH  *payment.Handler

	mu      sync.Mutex
	pending map[string]*pendingExec
}

// New builds a base executor. paymentHandler may be nil (payment-required
// notifications then fail with PaymentError).
func New(sgn signer.I, pool *relaypool.Pool, engine *encryption.Engine, pub *publisher.Publisher, servers *registry.ServerRegistry, paymentHandler *payment.Handler) *Base {
	return &Base{
		signer:    sgn,
		pool:      pool,
		engine:    engine,
		publisher: pub,
		servers:   servers,
		paymentH:  paymentHandler,
		pending:   map[string]*pendingExec{},
	}
}

// PendingCount reports how many executions are currently outstanding,
// used by tests asserting that the map is empty after every call
// returns.
func (b *Base) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Base) register(p *pendingExec) {
	b.mu.Lock()
	b.pending[p.id] = p
	b.mu.Unlock()
}

func (b *Base) unregister(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Execute sends a `method`/`params` request to capInfo's provider and
// blocks until a response is correlated, the 30s timeout fires, or ctx
// is canceled.
func (b *Base) Execute(ctx context.T, capInfo *capability.Info, method string, params any) (json.RawMessage, error) {
	template := event.New()
	template.Kind = kind.New(kind.Request)
	template.Pubkey = b.signer.Pub()
	tt := tags.New(tag.New("method", method), tag.New("p", hex.Enc(capInfo.ProviderPubkey)))
	if capInfo.ServerID != "" {
		tt.Append(tag.New("s", capInfo.ServerID))
	}
	template.Tags = tt

	contentBytes, err := json.Marshal(map[string]any{"method": method, "params": params})
	if err != nil {
		return nil, fmt.Errorf("executor: marshal request params: %w", err)
	}
	template.Content = string(contentBytes)

	execIDBytes, err := template.ComputeID()
	if err != nil {
		return nil, fmt.Errorf("executor: compute execution id: %w", err)
	}
	execID := hex.Enc(execIDBytes)

	supportsEnc := b.serverSupportsEncryption(capInfo)
	mode := b.engine.Mode()
	if mode == encryption.Required && !supportsEnc {
		return nil, apperrors.Errorf(apperrors.ErrEncryptionUnsupported, "server %s does not support encryption", capInfo.ServerID)
	}
	wrap := supportsEnc && mode != encryption.Disabled

	pending := newPendingExec(execID)
	b.register(pending)
	defer b.unregister(execID)

	subCtx, cancelSub := context.Cancel(ctx)
	defer cancelSub()
	f := filter.New().WithKinds(kind.Response, kind.Notification, kind.GiftWrap).WithSince(timestamp.Now())
	sub := b.pool.Subscribe(subCtx, f, func(ev *event.E) {
		b.handleCandidate(execID, ev, pending)
	}, nil, nil)
	defer sub.Close()

	timer := time.AfterFunc(executionTimeout, func() {
		pending.complete(nil, apperrors.Errorf(apperrors.ErrExecutionTimeout, "no response for %s after %s", execID, executionTimeout))
	})
	defer timer.Stop()

	if wrap {
		err = b.publisher.Publish(ctx, template, publisher.Options{Encrypt: true, Recipient: capInfo.ProviderPubkey})
	} else {
		if err = template.Sign(b.signer); err != nil {
			return nil, fmt.Errorf("executor: sign request: %w", err)
		}
		err = b.publisher.Publish(ctx, template, publisher.Options{})
	}
	if err != nil {
		return nil, apperrors.Errorf(apperrors.ErrRelay, "publish request: %v", err)
	}

	select {
	case out := <-pending.resultCh:
		return out.result, out.err
	case <-ctx.Done():
		pending.complete(nil, ctx.Err())
		return nil, ctx.Err()
	}
}

func (b *Base) serverSupportsEncryption(capInfo *capability.Info) bool {
	if capInfo.ServerID != "" {
		if s := b.servers.Get(capInfo.ServerID); s != nil {
			return s.SupportsEncryption
		}
	}
	if s := b.servers.GetByProvider(capInfo.ProviderPubkey); s != nil {
		return s.SupportsEncryption
	}
	return false
}

// handleCandidate decides whether ev is the response to execID and, if
// so, dispatches it. Encrypted candidates are unwrapped first; unwrap
// failure or a non-matching inner event is silently dropped (it belongs
// to someone else).
func (b *Base) handleCandidate(execID string, ev *event.E, pending *pendingExec) {
	if ev.Kind != nil && ev.Kind.Equal(kind.GiftWrap) {
		unwrapped, err := b.engine.Decrypt(ev, b.signer)
		if err != nil || unwrapped == nil {
			return
		}
		if !unwrapped.Inner.HasTag("e", execID) {
			return
		}
		b.dispatch(execID, unwrapped.Inner, pending)
		return
	}
	if !ev.HasTag("e", execID) {
		return
	}
	b.dispatch(execID, ev, pending)
}

func (b *Base) dispatch(execID string, ev *event.E, pending *pendingExec) {
	switch {
	case ev.Kind.Equal(kind.Response):
		var body map[string]any
		if err := json.Unmarshal([]byte(ev.Content), &body); err != nil {
			pending.complete(nil, apperrors.Errorf(apperrors.ErrProtocol, "malformed response body: %v", err))
			return
		}
		if errObj, ok := body["error"]; ok {
			pending.complete(nil, apperrors.Errorf(apperrors.ErrProtocol, "%v", errObj))
			return
		}
		if isErr, _ := body["isError"].(bool); isErr {
			pending.complete(nil, apperrors.Errorf(apperrors.ErrExecution, "%s", ev.Content))
			return
		}
		pending.complete(json.RawMessage(ev.Content), nil)

	case ev.Kind.Equal(kind.Notification):
		status := ev.Tags.GetFirstTagValue("status")
		if status == "" {
			status = ev.Tags.GetFirstTagValue("method")
		}
		switch status {
		case "error":
			pending.complete(nil, apperrors.Errorf(apperrors.ErrNotificationError, "%s", ev.Content))
		case "payment-required":
			invoice := ev.Tags.GetFirstTagValue("invoice")
			b.handlePaymentRequired(execID, invoice, pending)
		}
	}
}

// handlePaymentRequired pays invoice and, on success, leaves pending
// unresolved so the eventual response event can still complete it -
// payment extends the effective wait but never resets the 30s timer.
func (b *Base) handlePaymentRequired(execID, invoice string, pending *pendingExec) {
	if b.paymentH == nil {
		pending.complete(nil, apperrors.Errorf(apperrors.ErrPayment, "payment required for %s but no wallet configured", execID))
		return
	}
	go func() {
		if _, err := b.paymentH.Pay(context.Bg(), invoice); err != nil {
			pending.complete(nil, apperrors.Errorf(apperrors.ErrPayment, "%v", err))
			return
		}
		log.D.F("executor: payment settled for %s, awaiting final response", execID)
	}()
}
