package ws

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
	"relaycap.dev/pkg/encoders/hex"
	"relaycap.dev/pkg/utils/chk"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

var subscriptionIDCounter atomic.Int64

// Client is one relay connection, trimmed to what a Relay Pool needs:
// publish, subscribe, query. It does not implement NIP-42 AUTH.
type Client struct {
	closeMutex sync.Mutex

	URL           string
	requestHeader http.Header

	Connection    *Connection
	Subscriptions *xsync.MapOf[string, *Subscription]

	ConnectionError         error
	connectionContext       context.T
	connectionContextCancel context.C

	notices     chan []byte
	okCallbacks *xsync.MapOf[string, func(bool, string)]
	writeQueue  chan writeRequest

	AssumeValid bool
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// NewRelay builds an unconnected Client for url.
func NewRelay(ctx context.T, url string) *Client {
	ctx, cancel := context.Cause(ctx)
	return &Client{
		URL:                     url,
		connectionContext:       ctx,
		connectionContextCancel: cancel,
		Subscriptions:           xsync.NewMapOf[string, *Subscription](),
		okCallbacks:             xsync.NewMapOf[string, func(bool, string)](),
		writeQueue:              make(chan writeRequest),
	}
}

// RelayConnect builds and connects a Client in one step.
func RelayConnect(ctx context.T, url string) (*Client, error) {
	r := NewRelay(context.Bg(), url)
	err := r.Connect(ctx)
	return r, err
}

// String returns the relay URL.
func (r *Client) String() string { return r.URL }

// Context is canceled when the connection closes.
func (r *Client) Context() context.T { return r.connectionContext }

// IsConnected reports whether the connection appears alive.
func (r *Client) IsConnected() bool { return r.connectionContext.Err() == nil }

// Connect dials r.URL over plain TLS config.
func (r *Client) Connect(ctx context.T) error {
	return r.ConnectWithTLS(ctx, nil)
}

// ConnectWithTLS dials r.URL, then spawns the write-queue and
// message-reader goroutines that live for the connection's lifetime.
func (r *Client) ConnectWithTLS(ctx context.T, tlsConfig *tls.Config) error {
	if r.connectionContext == nil || r.Subscriptions == nil {
		return fmt.Errorf("ws: relay must be initialized via NewRelay")
	}
	if r.URL == "" {
		return fmt.Errorf("ws: invalid relay URL")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.F
		ctx, cancel = context.Timeout(ctx, 7*time.Second)
		defer cancel()
	}
	conn, err := NewConnection(ctx, r.URL, r.requestHeader, tlsConfig)
	if err != nil {
		return fmt.Errorf("ws: error opening websocket to %q: %w", r.URL, err)
	}
	r.Connection = conn

	ticker := time.NewTicker(29 * time.Second)

	go func() {
		for {
			select {
			case <-r.connectionContext.Done():
				ticker.Stop()
				r.Connection = nil
				r.Subscriptions.Range(
					func(_ string, sub *Subscription) bool {
						sub.unsub(
							fmt.Errorf(
								"ws: relay connection closed: %v",
								context.GetCause(r.connectionContext),
							),
						)
						return true
					},
				)
				return
			case <-ticker.C:
				if perr := r.ping(r.connectionContext); perr != nil {
					log.I.F("{%s} ping failed, closing: %v", r.URL, perr)
					r.Close()
					return
				}
			case wr := <-r.writeQueue:
				log.D.F("{%s} sending %s", r.URL, wr.msg)
				if werr := r.Connection.WriteMessage(r.connectionContext, wr.msg); werr != nil {
					wr.answer <- werr
				}
				close(wr.answer)
			}
		}
	}()

	go func() {
		for {
			buf := new(bytes.Buffer)
			if rerr := conn.ReadMessage(r.connectionContext, buf); rerr != nil {
				r.ConnectionError = rerr
				r.Close()
				return
			}
			r.handleMessage(buf.Bytes())
		}
	}()

	return nil
}

// ping writes a trivial REQ-less ping as a `["NOTICE","ping"]` frame - the
// relay pool treats any write failure the same way whether or not the
// transport has dedicated ping frames.
func (r *Client) ping(ctx context.T) error {
	return r.Connection.WriteMessage(ctx, []byte(`["NOTICE","ping"]`))
}

func (r *Client) handleMessage(raw []byte) {
	log.D.F("{%s} %s", r.URL, raw)
	env, err := decodeEnvelope(raw)
	if chk.D(err) {
		return
	}
	switch env.Label {
	case "NOTICE":
		msg, _ := env.str(0)
		if r.notices != nil {
			r.notices <- []byte(msg)
		} else {
			log.W.F("NOTICE from %s: %s", r.URL, msg)
		}
	case "EVENT":
		subID, serr := env.str(0)
		if serr != nil {
			return
		}
		ev, eerr := env.event(1)
		if eerr != nil {
			return
		}
		sub, ok := r.Subscriptions.Load(subID)
		if !ok {
			log.D.F("{%s} no subscription %q", r.URL, subID)
			return
		}
		if !sub.Filters.Match(ev) {
			return
		}
		if !r.AssumeValid {
			if valid, verr := ev.Verify(); verr != nil || !valid {
				log.W.F("{%s} bad signature on %s", r.URL, hex.Enc(ev.ID))
				return
			}
		}
		sub.dispatchEvent(ev)
	case "EOSE":
		subID, serr := env.str(0)
		if serr != nil {
			return
		}
		if sub, ok := r.Subscriptions.Load(subID); ok {
			sub.dispatchEose()
		}
	case "CLOSED":
		subID, serr := env.str(0)
		if serr != nil {
			return
		}
		reason, _ := env.str(1)
		if sub, ok := r.Subscriptions.Load(subID); ok {
			sub.handleClosed(reason)
		}
	case "OK":
		idHex, serr := env.str(0)
		if serr != nil {
			return
		}
		ok, _ := env.boolAt(1)
		reason, _ := env.str(2)
		if cb, exist := r.okCallbacks.Load(idHex); exist {
			cb(ok, reason)
		}
	}
}

// Write queues an arbitrary message to be sent to the relay.
func (r *Client) Write(msg []byte) <-chan error {
	ch := make(chan error)
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-r.connectionContext.Done():
		go func() { ch <- fmt.Errorf("ws: connection closed") }()
	}
	return ch
}

// Publish sends an EVENT command and waits for an OK response.
func (r *Client) Publish(ctx context.T, ev *event.E) error {
	envb, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return r.publish(ctx, hex.Enc(ev.ID), envb)
}

func (r *Client) publish(ctx context.T, idHex string, envb []byte) error {
	var err error
	var cancel context.F
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.Timeout(ctx, 7*time.Second)
		defer cancel()
	} else {
		ctx, cancel = context.Cancel(ctx)
		defer cancel()
	}

	gotOk := false
	r.okCallbacks.Store(
		idHex, func(ok bool, reason string) {
			gotOk = true
			if !ok {
				err = fmt.Errorf("ws: %s", reason)
			}
			cancel()
		},
	)
	defer r.okCallbacks.Delete(idHex)

	if werr := <-r.Write(envb); werr != nil {
		return werr
	}

	select {
	case <-ctx.Done():
		if gotOk {
			return err
		}
		return ctx.Err()
	case <-r.connectionContext.Done():
		if gotOk {
			return err
		}
		return fmt.Errorf("ws: connection to %s closed before OK", r.URL)
	}
}

// Subscribe sends a REQ command and returns the live Subscription.
func (r *Client) Subscribe(ctx context.T, f *filter.F, opts ...SubscriptionOption) (*Subscription, error) {
	sub := r.PrepareSubscription(ctx, f, opts...)
	if r.Connection == nil {
		return nil, fmt.Errorf("ws: not connected to %s", r.URL)
	}
	if err := sub.Fire(); err != nil {
		return nil, fmt.Errorf("ws: couldn't subscribe at %s: %w", r.URL, err)
	}
	return sub, nil
}

// PrepareSubscription builds a Subscription without firing the REQ yet.
func (r *Client) PrepareSubscription(ctx context.T, f *filter.F, opts ...SubscriptionOption) *Subscription {
	current := subscriptionIDCounter.Add(1)
	ctx, cancel := context.Cause(ctx)
	sub := &Subscription{
		Client:            r,
		Context:           ctx,
		cancel:            cancel,
		counter:           current,
		Events:            make(chan *event.E),
		EndOfStoredEvents: make(chan struct{}, 1),
		ClosedReason:      make(chan string, 1),
		Filters:           f,
	}
	label := ""
	for _, opt := range opts {
		if l, ok := opt.(WithLabel); ok {
			label = string(l)
		}
	}
	var b strings.Builder
	b.WriteString(strconv.FormatInt(sub.counter, 10))
	b.WriteByte(':')
	b.WriteString(label)
	sub.id = b.String()
	r.Subscriptions.Store(sub.id, sub)
	go sub.start()
	return sub
}

// SubscriptionOption configures a PrepareSubscription call.
type SubscriptionOption interface{ isSubscriptionOption() }

// WithLabel tags a subscription id with a human-readable label.
type WithLabel string

func (WithLabel) isSubscriptionOption() {}

// QueryEvents subscribes and streams matching events until EOSE/closed.
func (r *Client) QueryEvents(ctx context.T, f *filter.F) (chan *event.E, error) {
	sub, err := r.Subscribe(ctx, f)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-sub.ClosedReason:
		case <-sub.EndOfStoredEvents:
		case <-ctx.Done():
		case <-r.Context().Done():
		}
		sub.unsub(errors.New("ws: QueryEvents ended"))
	}()
	return sub.Events, nil
}

// QuerySync blocks until every matching event up to EOSE is collected.
func (r *Client) QuerySync(ctx context.T, f *filter.F) ([]*event.E, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.F
		ctx, cancel = context.Timeout(ctx, 7*time.Second)
		defer cancel()
	}
	lim := f.Limit
	if lim <= 0 {
		lim = 250
	}
	events := make([]*event.E, 0, lim)
	ch, err := r.QueryEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	for ev := range ch {
		events = append(events, ev)
	}
	return events, nil
}

// Close tears down the connection and every live subscription.
func (r *Client) Close() error {
	return r.close(errors.New("ws: Close() called"))
}

func (r *Client) close(reason error) error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()
	if r.connectionContextCancel == nil {
		return fmt.Errorf("ws: relay already closed")
	}
	r.connectionContextCancel(reason)
	r.connectionContextCancel = nil
	if r.Connection == nil {
		return fmt.Errorf("ws: relay not connected")
	}
	return r.Connection.Close()
}
