package ws

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
	"relaycap.dev/pkg/encoders/timestamp"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
	"relaycap.dev/pkg/utils/normalize"
)

const seenAlreadyDropTick = time.Minute

// Pool owns every relay connection the aggregator uses, deduplicates
// events seen on more than one relay, re-dials dropped relays on demand
// (EnsureRelay), and penalizes relays that fail to connect.
type Pool struct {
	Relays  *xsync.MapOf[string, *Client]
	Context context.T
	cancel  context.C

	eventMiddleware     func(RelayEvent)
	duplicateMiddleware func(relay, id string)

	reconnected func(url string)

	penaltyBoxMu sync.Mutex
	penaltyBox   map[string][2]float64

	namedLocksMu sync.Mutex
	namedLocks   map[string]*sync.Mutex
}

// RelayEvent pairs a received event with the relay that delivered it.
type RelayEvent struct {
	*event.E
	Relay *Client
}

// NewPool builds a Pool bound to ctx; canceling ctx tears the whole pool
// down.
func NewPool(c context.T) *Pool {
	ctx, cancel := context.Cause(c)
	p := &Pool{
		Relays:     xsync.NewMapOf[string, *Client](),
		Context:    ctx,
		cancel:     cancel,
		penaltyBox: make(map[string][2]float64),
		namedLocks: make(map[string]*sync.Mutex),
	}
	go p.decayPenaltyBox()
	return p
}

// OnEvent installs a callback invoked for every event received, before
// de-duplication decisions downstream of the Pool.
func (p *Pool) OnEvent(fn func(RelayEvent)) { p.eventMiddleware = fn }

// OnDuplicate installs a callback invoked when a relay delivers an event
// id already seen from another relay.
func (p *Pool) OnDuplicate(fn func(relay, id string)) { p.duplicateMiddleware = fn }

// OnReconnected installs a callback fired after EnsureRelay successfully
// re-dials a relay that was previously disconnected.
func (p *Pool) OnReconnected(fn func(url string)) { p.reconnected = fn }

func (p *Pool) decayPenaltyBox() {
	sleep := 30.0
	for {
		select {
		case <-p.Context.Done():
			return
		case <-time.After(time.Duration(sleep) * time.Second):
		}
		p.penaltyBoxMu.Lock()
		next := 300.0
		for url, v := range p.penaltyBox {
			remaining := v[1] - sleep
			if remaining <= 0 {
				p.penaltyBox[url] = [2]float64{v[0], 0}
				continue
			}
			p.penaltyBox[url] = [2]float64{v[0], remaining}
			if remaining < next {
				next = remaining
			}
		}
		sleep = next
		p.penaltyBoxMu.Unlock()
	}
}

func (p *Pool) namedLock(name string) func() {
	p.namedLocksMu.Lock()
	mu, ok := p.namedLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		p.namedLocks[name] = mu
	}
	p.namedLocksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// EnsureRelay returns a connected Client for url, dialing (or
// re-dialing) it if necessary. A relay whose last connection attempt
// failed is held in the penalty box and rejected here without dialing
// until its backoff (30s plus 2^n seconds after n failures) elapses.
func (p *Pool) EnsureRelay(url string) (*Client, error) {
	nm := normalize.URL(url)
	defer p.namedLock(nm)()

	wasKnown := false
	if relay, ok := p.Relays.Load(nm); ok {
		wasKnown = true
		if relay.IsConnected() {
			return relay, nil
		}
	}

	p.penaltyBoxMu.Lock()
	v := p.penaltyBox[nm]
	remaining := v[1]
	p.penaltyBoxMu.Unlock()
	if remaining > 0 {
		return nil, fmt.Errorf("ws: %s in penalty box, %.0fs remaining", nm, remaining)
	}

	ctx, cancel := context.Timeout(p.Context, 5*time.Second)
	defer cancel()
	relay := NewRelay(context.Bg(), nm)
	if err := relay.Connect(ctx); err != nil {
		p.penaltyBoxMu.Lock()
		v := p.penaltyBox[nm]
		p.penaltyBox[nm] = [2]float64{v[0] + 1, 30.0 + math.Pow(2, v[0]+1)}
		p.penaltyBoxMu.Unlock()
		return nil, fmt.Errorf("ws: failed to connect to %s: %w", nm, err)
	}
	p.penaltyBoxMu.Lock()
	delete(p.penaltyBox, nm)
	p.penaltyBoxMu.Unlock()

	p.Relays.Store(nm, relay)
	if wasKnown && p.reconnected != nil {
		p.reconnected(nm)
	}
	return relay, nil
}

// AddRelay is idempotent: if url isn't yet configured, it triggers a
// connection attempt (and future reconnects) for it.
func (p *Pool) AddRelay(url string) error {
	_, err := p.EnsureRelay(url)
	return err
}

// Liveness reports, for every relay ever added to the pool, whether its
// connection currently appears up.
func (p *Pool) Liveness() map[string]bool {
	out := map[string]bool{}
	p.Relays.Range(
		func(url string, relay *Client) bool {
			out[url] = relay.IsConnected()
			return true
		},
	)
	return out
}

// Publish sends an event to every url given, returning the first error
// encountered (if any); all publishes run concurrently.
func (p *Pool) Publish(ctx context.T, urls []string, ev *event.E) error {
	var wg sync.WaitGroup
	errs := make([]error, len(urls))
	wg.Add(len(urls))
	for i, url := range urls {
		go func(i int, url string) {
			defer wg.Done()
			relay, err := p.EnsureRelay(url)
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = relay.Publish(ctx, ev)
		}(i, url)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// SubscribeMany multiplexes the same filter across urls, de-duplicating
// events by id, until ctx is canceled or every relay closes the
// subscription.
func (p *Pool) SubscribeMany(ctx context.T, urls []string, f *filter.F) chan RelayEvent {
	return p.subMany(ctx, urls, f, nil)
}

// FetchMany is SubscribeMany but the channel closes once every relay has
// sent EOSE (or died).
func (p *Pool) FetchMany(ctx context.T, urls []string, f *filter.F) chan RelayEvent {
	eose := make(chan struct{})
	ch := p.subMany(ctx, urls, f, eose)
	out := make(chan RelayEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-eose:
				return
			case ie, more := <-ch:
				if !more {
					return
				}
				out <- ie
			}
		}
	}()
	return out
}

// Query is FetchMany collected into a slice, deduplicated by event id,
// bounded by ctx's deadline (a short grace period if none is set).
func (p *Pool) Query(ctx context.T, urls []string, f *filter.F) ([]*event.E, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.F
		ctx, cancel = context.Timeout(ctx, 5*time.Second)
		defer cancel()
	}
	seen := map[string]bool{}
	var out []*event.E
	for ie := range p.FetchMany(ctx, urls, f) {
		id := string(ie.E.ID)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, ie.E)
	}
	return out, nil
}

func (p *Pool) subMany(ctx context.T, urls []string, f *filter.F, eoseChan chan struct{}) chan RelayEvent {
	ctx, cancel := context.Cause(ctx)
	events := make(chan RelayEvent)
	seenAlready := xsync.NewMapOf[string, *timestamp.T]()
	ticker := time.NewTicker(seenAlreadyDropTick)

	eoseWg := sync.WaitGroup{}
	eoseWg.Add(len(urls))
	if eoseChan != nil {
		go func() {
			eoseWg.Wait()
			close(eoseChan)
		}()
	}

	pending := int64(len(urls))
	var pendingMu sync.Mutex
	decPending := func() {
		pendingMu.Lock()
		pending--
		done := pending == 0
		pendingMu.Unlock()
		if done {
			close(events)
			cancel(fmt.Errorf("ws: subMany aborted: %v", context.GetCause(ctx)))
		}
	}

	for i, url := range urls {
		nm := normalize.URL(url)
		urls[i] = nm
		if idx := slices.Index(urls[:i], nm); idx != i && idx >= 0 {
			eoseWg.Done()
			continue
		}

		eosed := atomic.Bool{}
		firstConnection := true

		go func(nm string) {
			defer func() {
				decPending()
				if eosed.CompareAndSwap(false, true) {
					eoseWg.Done()
				}
			}()

			interval := 3 * time.Second
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				relay, err := p.EnsureRelay(nm)
				if err != nil {
					if firstConnection {
						return
					}
					log.D.F("%s reconnecting because connection failed", nm)
					goto reconnect
				}
				firstConnection = false

				{
					sub, serr := relay.Subscribe(ctx, f)
					if serr != nil {
						log.D.F("%s reconnecting because subscription failed", nm)
						goto reconnect
					}

					go func() {
						<-sub.EndOfStoredEvents
						if eosed.CompareAndSwap(false, true) {
							eoseWg.Done()
						}
					}()

					interval = 3 * time.Second

					for {
						select {
						case evt, more := <-sub.Events:
							if !more {
								now := timestamp.Now()
								f.Since = now
								log.D.F("%s reconnecting: events channel closed", nm)
								goto reconnect
							}
							id := string(evt.ID)
							if _, dup := seenAlready.LoadOrStore(id, timestamp.Now()); dup {
								if p.duplicateMiddleware != nil {
									p.duplicateMiddleware(nm, id)
								}
								continue
							}
							ie := RelayEvent{E: evt, Relay: relay}
							if p.eventMiddleware != nil {
								p.eventMiddleware(ie)
							}
							select {
							case events <- ie:
							case <-ctx.Done():
								return
							}
						case <-ticker.C:
							if eosed.Load() {
								old := time.Now().Add(-seenAlreadyDropTick).Unix()
								seenAlready.Range(
									func(id string, ts *timestamp.T) bool {
										if ts.I64() < old {
											seenAlready.Delete(id)
										}
										return true
									},
								)
							}
						case reason := <-sub.ClosedReason:
							log.D.F("CLOSED from %s: %s", nm, reason)
							return
						case <-ctx.Done():
							return
						}
					}
				}

			reconnect:
				select {
				case <-ctx.Done():
					return
				case <-time.After(interval):
				}
				interval = interval * 17 / 10
			}
		}(nm)
	}

	return events
}

// Close tears down every connection and subscription in the pool.
func (p *Pool) Close(reason string) {
	p.cancel(errors.New("ws: pool closed: " + reason))
	p.Relays.Range(
		func(_ string, relay *Client) bool {
			relay.Close()
			return true
		},
	)
}
