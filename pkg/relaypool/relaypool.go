// Package relaypool is a facade over pkg/protocol/ws.Pool that publishes
// best-of-N, multiplexes subscriptions with an explicit EOSE signal, and
// runs a 10-second reconnect scheduler. ws.Pool already supplies
// per-relay connections, a penalty box, and a reconnected-callback
// hook; this package adds the ordered configured-URL list and the
// publish/subscribe/query surface the rest of the aggregator is
// written against.
package relaypool

import (
	"fmt"
	"sync"
	"time"

	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
	"relaycap.dev/pkg/protocol/ws"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
	"relaycap.dev/pkg/utils/normalize"
)

// reconnectTick is how often the background scheduler re-dials relays
// whose connection status is "not connected".
const reconnectTick = 10 * time.Second

// dialTimeout bounds a single reconnect attempt.
const dialTimeout = 5 * time.Second

// publishWindow bounds how long Publish waits for the first
// acknowledgement before failing with NoRelayAcknowledged.
const publishWindow = 7 * time.Second

// Subscription is a live multiplexed subscription across every
// configured relay, de-duplicated by event id.
type Subscription struct {
	cancel context.F
	done   chan struct{}
}

// Close tears the subscription down; its onClose callback fires exactly
// once, here or from natural completion, whichever comes first.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Pool is the Relay Pool.
type Pool struct {
	ws *ws.Pool

	mu   sync.Mutex
	urls []string

	ctx    context.T
	cancel context.F

	onReconnected []func(url string)
}

// New builds a Pool over the given ordered relay URL list and starts the
// reconnect scheduler.
func New(ctx context.T, urls []string) *Pool {
	ctx, cancel := context.Cancel(ctx)
	p := &Pool{
		ws:     ws.NewPool(ctx),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, u := range urls {
		p.urls = append(p.urls, normalize.URL(u))
	}
	p.ws.OnReconnected(func(url string) {
		p.mu.Lock()
		cbs := append([]func(string){}, p.onReconnected...)
		p.mu.Unlock()
		for _, cb := range cbs {
			cb(url)
		}
	})
	for _, u := range p.urls {
		go func(u string) { _, _ = p.ws.EnsureRelay(u) }(u)
	}
	go p.reconnectLoop()
	return p
}

// OnReconnected registers a callback fired whenever AddRelay or the
// background scheduler successfully re-dials a previously known relay.
func (p *Pool) OnReconnected(fn func(url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReconnected = append(p.onReconnected, fn)
}

func (p *Pool) reconnectLoop() {
	ticker := time.NewTicker(reconnectTick)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			for _, u := range p.URLs() {
				go func(u string) {
					ctx, cancel := context.Timeout(p.ctx, dialTimeout)
					defer cancel()
					if _, err := p.ws.EnsureRelay(u); err != nil {
						log.D.F("relaypool: reconnect to %s failed: %v", u, err)
					}
					<-ctx.Done()
				}(u)
			}
		}
	}
}

// URLs returns a snapshot of the configured relay URL list.
func (p *Pool) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}

// AddRelay is idempotent: appending url if not already present and
// dialing it (triggering a reconnect going forward). Subsequently
// visible to the reconnect scheduler and any new Subscribe/Query call.
func (p *Pool) AddRelay(url string) error {
	nm := normalize.URL(url)
	p.mu.Lock()
	for _, u := range p.urls {
		if u == nm {
			p.mu.Unlock()
			return nil
		}
	}
	p.urls = append(p.urls, nm)
	p.mu.Unlock()
	_, err := p.ws.EnsureRelay(nm)
	return err
}

// Liveness reports per-relay connection status for every configured URL.
func (p *Pool) Liveness() map[string]bool {
	all := p.ws.Liveness()
	out := make(map[string]bool, len(p.URLs()))
	for _, u := range p.URLs() {
		out[u] = all[u]
	}
	return out
}

// Publish sends ev to every configured relay and returns once the
// fastest acknowledgement arrives; other publishes may still be in
// flight. Fails with a wrapped NoRelayAcknowledged error if every relay
// fails before publishWindow elapses.
func (p *Pool) Publish(ctx context.T, ev *event.E) error {
	urls := p.URLs()
	if len(urls) == 0 {
		return fmt.Errorf("relaypool: no relays configured")
	}
	ctx, cancel := context.Timeout(ctx, publishWindow)
	defer cancel()

	type result struct{ err error }
	results := make(chan result, len(urls))
	for _, u := range urls {
		go func(u string) {
			relay, err := p.ws.EnsureRelay(u)
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{err: relay.Publish(ctx, ev)}
		}(u)
	}

	var lastErr error
	for i := 0; i < len(urls); i++ {
		select {
		case r := <-results:
			if r.err == nil {
				return nil
			}
			lastErr = r.err
		case <-ctx.Done():
			return fmt.Errorf("relaypool: NoRelayAcknowledged: %w", ctx.Err())
		}
	}
	return fmt.Errorf("relaypool: NoRelayAcknowledged: %w", lastErr)
}

// Subscribe multiplexes f across every configured relay. onEvent fires
// for every distinct matching event (de-duplicated by id); onEOSE fires
// once every relay has drained its historical backlog (or failed to
// connect); onClose fires on teardown, however triggered.
func (p *Pool) Subscribe(ctx context.T, f *filter.F, onEvent func(*event.E), onEOSE func(), onClose func()) *Subscription {
	ctx, cancel := context.Cancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	urls := p.URLs()
	var seenMu sync.Mutex
	seen := map[string]bool{}
	var eoseWg sync.WaitGroup
	eoseWg.Add(len(urls))
	eoseOnce := sync.Once{}
	eoseDone := make(chan struct{})
	go func() {
		eoseWg.Wait()
		close(eoseDone)
	}()

	var relayWg sync.WaitGroup
	for _, u := range urls {
		relayWg.Add(1)
		go func(u string) {
			defer relayWg.Done()
			markEose := sync.Once{}
			doneEose := func() {
				markEose.Do(eoseWg.Done)
			}
			relay, err := p.ws.EnsureRelay(u)
			if err != nil {
				doneEose()
				return
			}
			wsSub, err := relay.Subscribe(ctx, f)
			if err != nil {
				doneEose()
				return
			}
			defer wsSub.Unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case <-wsSub.EndOfStoredEvents:
					doneEose()
				case ev, ok := <-wsSub.Events:
					if !ok {
						return
					}
					id := string(ev.ID)
					seenMu.Lock()
					dup := seen[id]
					seen[id] = true
					seenMu.Unlock()
					if dup {
						continue
					}
					onEvent(ev)
				case <-wsSub.ClosedReason:
					doneEose()
					return
				}
			}
		}(u)
	}

	if onEOSE != nil {
		go func() {
			select {
			case <-eoseDone:
				eoseOnce.Do(onEOSE)
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		relayWg.Wait()
		if onClose != nil {
			onClose()
		}
		close(sub.done)
	}()

	return sub
}

// Query opens a subscription and collects events until EOSE on every
// relay or a short grace timeout, returning the deduplicated set.
func (p *Pool) Query(ctx context.T, f *filter.F) ([]*event.E, error) {
	ctx, cancel := context.Timeout(ctx, publishWindow)
	defer cancel()

	var mu sync.Mutex
	var out []*event.E
	eoseCh := make(chan struct{})
	sub := p.Subscribe(ctx, f,
		func(ev *event.E) {
			mu.Lock()
			out = append(out, ev)
			mu.Unlock()
		},
		func() { close(eoseCh) },
		nil,
	)
	select {
	case <-eoseCh:
	case <-ctx.Done():
	}
	sub.Close()

	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// Close tears down every connection and subscription.
func (p *Pool) Close() {
	p.cancel()
	p.ws.Close("relaypool: Close() called")
}
