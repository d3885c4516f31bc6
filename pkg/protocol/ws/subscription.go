package ws

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/filter"
	"relaycap.dev/pkg/utils/context"
)

// Subscription is one REQ sent to one relay.
type Subscription struct {
	counter int64
	id      string

	Client  *Client
	Filters *filter.F

	Events chan *event.E
	mu     sync.Mutex

	EndOfStoredEvents chan struct{}
	ClosedReason      chan string

	Context context.T

	live   atomic.Bool
	eosed  atomic.Bool
	cancel context.C

	storedwg sync.WaitGroup
}

func (sub *Subscription) start() {
	<-sub.Context.Done()
	sub.unsub(errors.New("ws: context done on start()"))
	sub.mu.Lock()
	close(sub.Events)
	sub.mu.Unlock()
}

// GetID returns the subscription id sent in REQ/CLOSE frames.
func (sub *Subscription) GetID() string { return sub.id }

func (sub *Subscription) dispatchEvent(evt *event.E) {
	added := false
	if !sub.eosed.Load() {
		sub.storedwg.Add(1)
		added = true
	}
	go func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.live.Load() {
			select {
			case sub.Events <- evt:
			case <-sub.Context.Done():
			}
		}
		if added {
			sub.storedwg.Done()
		}
	}()
}

func (sub *Subscription) dispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		go func() {
			sub.storedwg.Wait()
			sub.EndOfStoredEvents <- struct{}{}
		}()
	}
}

// handleClosed handles a CLOSED frame from the relay.
func (sub *Subscription) handleClosed(reason string) {
	go func() {
		sub.ClosedReason <- reason
		sub.live.Store(false)
		sub.unsub(fmt.Errorf("ws: CLOSED received: %s", reason))
	}()
}

// Unsub tears down the subscription, sending CLOSE to the relay.
func (sub *Subscription) Unsub() {
	sub.unsub(errors.New("ws: Unsub() called"))
}

func (sub *Subscription) unsub(err error) {
	sub.cancel(err)
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}
	sub.Client.Subscriptions.Delete(sub.id)
}

// Close sends a bare CLOSE frame. Prefer Unsub().
func (sub *Subscription) Close() {
	if sub.Client.IsConnected() {
		closeb, err := encodeClose(sub.id)
		if err == nil {
			<-sub.Client.Write(closeb)
		}
	}
}

// Fire sends the REQ frame for sub.Filters.
func (sub *Subscription) Fire() (err error) {
	reqb, err := encodeReq(sub.id, sub.Filters)
	if err != nil {
		return fmt.Errorf("ws: failed to encode REQ: %w", err)
	}
	sub.live.Store(true)
	if err = <-sub.Client.Write(reqb); err != nil {
		err = fmt.Errorf("ws: failed to write REQ: %w", err)
		sub.cancel(err)
		return err
	}
	return nil
}
