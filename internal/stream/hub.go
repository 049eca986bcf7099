// Package stream fans decoded market-data events out to in-process
// subscribers keyed by exchange:token subject.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openalgo/gateway/internal/schema"
)

const defaultBuffer = 256

// Subscription is one consumer's view of the hub. Events arrive on C until
// Close is called.
type Subscription struct {
	ID       string
	C        <-chan schema.Event
	ch       chan schema.Event
	subjects map[string]struct{}
	all      bool
	dropped  atomic.Uint64
	closed   atomic.Bool
}

// Dropped reports how many events were discarded because the subscriber
// lagged. A dropped coalescable event is replaced by a newer snapshot of the
// same subject; a dropped non-coalescable event is simply lost.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) matches(subject string) bool {
	if s.all {
		return true
	}
	_, ok := s.subjects[subject]
	return ok
}

// Hub is the in-process pub/sub fan-out for decoded ticks. Publishing never
// blocks: a full subscriber buffer evicts its oldest event to make room for
// a coalescable one, and drops a non-coalescable one outright.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	seq    atomic.Uint64
	closed bool

	onDrop func(subject string)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

// OnDrop installs a callback invoked once per evicted event. Used to feed
// drop counters; must be set before the first Publish.
func (h *Hub) OnDrop(fn func(subject string)) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Subscribe registers a consumer for the given subjects. An empty subject
// list subscribes to everything. buffer <= 0 uses the default.
func (h *Hub) Subscribe(subjects []string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan schema.Event, buffer)
	sub := &Subscription{
		ID: uuid.NewString(),
		C:  ch,
		ch: ch,
	}
	if len(subjects) == 0 {
		sub.all = true
	} else {
		sub.subjects = make(map[string]struct{}, len(subjects))
		for _, subject := range subjects {
			sub.subjects[subject] = struct{}{}
		}
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		sub.closed.Store(true)
		return sub
	}
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	h.mu.Unlock()
	if ok && sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

// Publish stamps the event with a hub sequence number and emit time, then
// delivers it to every matching subscriber. When a subscriber lags, a
// coalescable event evicts the oldest buffered one so the newest snapshot
// wins; a non-coalescable event is discarded instead of displacing queued
// state. Publishing never blocks the decode loop.
func (h *Hub) Publish(ev schema.Event) {
	ev.Seq = h.seq.Add(1)
	if ev.EmitTS.IsZero() {
		ev.EmitTS = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.matches(ev.Subject) {
			h.deliver(sub, ev)
		}
	}
}

func (h *Hub) deliver(sub *Subscription, ev schema.Event) {
	for {
		select {
		case sub.ch <- ev:
			return
		default:
		}
		if !ev.Type.Coalescable() {
			sub.dropped.Add(1)
			if h.onDrop != nil {
				h.onDrop(ev.Subject)
			}
			return
		}
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			if h.onDrop != nil {
				h.onDrop(ev.Subject)
			}
		default:
		}
	}
}

// Close closes every subscription channel and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
}
