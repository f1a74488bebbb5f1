// Package broadcast implements one-to-many event distribution with two
// consumption models: edge-triggered streams that buffer every event, and
// level-triggered vars that coalesce to the latest value.
//
// Producers never block on a consumer. Edge subscriptions buffer without
// bound, trading memory for a producer that can always make progress; a
// consumer that stops draining and never cancels will grow its buffer.
package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by Next after the subscription is cancelled.
var ErrCancelled = errors.New("broadcast: subscription cancelled")

// Hub fans events out to any number of subscriptions. Events published
// before a subscription exists are never replayed.
type Hub[T any] struct {
	mu   sync.Mutex
	subs []*Subscription[T]
}

// NewHub returns an empty hub.
func NewHub[T any]() *Hub[T] { return &Hub[T]{} }

// Subscribe registers a new FIFO subscription. Cancelled subscriptions are
// pruned opportunistically here and on every Publish.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	return h.add(newSubscription[T](false))
}

func (h *Hub[T]) add(s *Subscription[T]) *Subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked()
	h.subs = append(h.subs, s)
	return s
}

// Publish delivers v to every live subscription. The subscriber set is
// snapshotted under the hub lock and delivery happens outside it, so a
// consumer reacting to v may subscribe or cancel without deadlocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	h.pruneLocked()
	snapshot := make([]*Subscription[T], len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	for _, s := range snapshot {
		s.push(v)
	}
}

// Close cancels every subscription.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	snapshot := h.subs
	h.subs = nil
	h.mu.Unlock()
	for _, s := range snapshot {
		s.Cancel()
	}
}

// Len reports the number of live subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked()
	return len(h.subs)
}

func (h *Hub[T]) pruneLocked() {
	kept := h.subs[:0]
	for _, s := range h.subs {
		if !s.cancelled() {
			kept = append(kept, s)
		}
	}
	h.subs = kept
}

// Subscription is one consumer's view of a hub or var. Exactly one
// goroutine is expected to call Next; Cancel may be called from anywhere
// and is idempotent.
type Subscription[T any] struct {
	mu       sync.Mutex
	buf      []T
	coalesce bool
	closed   bool
	signal   chan struct{}
}

func newSubscription[T any](coalesce bool) *Subscription[T] {
	return &Subscription[T]{coalesce: coalesce, signal: make(chan struct{}, 1)}
}

// push enqueues v without ever blocking the producer.
func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.coalesce && len(s.buf) > 0 {
		s.buf[len(s.buf)-1] = v
	} else {
		s.buf = append(s.buf, v)
	}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next suspends until the next event, ctx cancellation, or Cancel.
// Cancelling discards anything still buffered: the consumer observes a
// strict prefix of the published sequence.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return zero, ErrCancelled
		}
		if len(s.buf) > 0 {
			v := s.buf[0]
			s.buf = s.buf[1:]
			if len(s.buf) > 0 {
				select {
				case s.signal <- struct{}{}:
				default:
				}
			}
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.signal:
		}
	}
}

// Cancel detaches the subscription. Idempotent; wakes a blocked Next.
func (s *Subscription[T]) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
