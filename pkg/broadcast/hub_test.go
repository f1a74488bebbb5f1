package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFanOutOrdering(t *testing.T) {
	const events = 100
	const consumers = 8

	h := NewHub[int]()
	var wg sync.WaitGroup
	results := make([][]int, consumers)
	subs := make([]*Subscription[int], consumers)
	for i := 0; i < consumers; i++ {
		subs[i] = h.Subscribe()
	}
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				v, err := subs[i].Next(ctx)
				if err != nil {
					return
				}
				results[i] = append(results[i], v)
				if v == events-1 {
					return
				}
			}
		}(i)
	}

	for n := 0; n < events; n++ {
		h.Publish(n)
	}
	wg.Wait()

	for i, seq := range results {
		if len(seq) != events {
			t.Fatalf("consumer %d saw %d events, want %d", i, len(seq), events)
		}
		for n, v := range seq {
			if v != n {
				t.Fatalf("consumer %d out of order at %d: got %d", i, n, v)
			}
		}
	}
}

func TestCancelObservesStrictPrefix(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe()

	for n := 0; n < 10; n++ {
		h.Publish(n)
	}
	ctx := context.Background()
	for n := 0; n < 5; n++ {
		v, err := s.Next(ctx)
		if err != nil || v != n {
			t.Fatalf("next: v=%d err=%v", v, err)
		}
	}
	s.Cancel()
	if _, err := s.Next(ctx); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	// Publishing after cancel neither blocks nor resurrects the sub.
	h.Publish(99)
	if _, err := s.Next(ctx); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled after publish, got %v", err)
	}
}

func TestNoReplayToLateSubscriber(t *testing.T) {
	h := NewHub[int]()
	h.Publish(1)
	h.Publish(2)
	s := h.Subscribe()
	h.Publish(3)

	ctx := context.Background()
	if v, err := s.Next(ctx); err != nil || v != 3 {
		t.Fatalf("late subscriber should only see new events: v=%d err=%v", v, err)
	}
}

func TestPublishNeverBlocksOnAbsentConsumer(t *testing.T) {
	h := NewHub[int]()
	_ = h.Subscribe() // nobody ever drains this

	done := make(chan struct{})
	go func() {
		for n := 0; n < 10000; n++ {
			h.Publish(n)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("publish blocked on an undrained subscription")
	}
}

func TestPruneOnPublishAndSubscribe(t *testing.T) {
	h := NewHub[int]()
	a := h.Subscribe()
	b := h.Subscribe()
	a.Cancel()
	h.Publish(1)
	if n := h.Len(); n != 1 {
		t.Fatalf("expected 1 live sub after prune, got %d", n)
	}
	b.Cancel()
	_ = h.Subscribe()
	if n := h.Len(); n != 1 {
		t.Fatalf("expected 1 live sub after re-subscribe, got %d", n)
	}
}

func TestNextHonorsContext(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestSubscribeDuringDelivery(t *testing.T) {
	// A consumer reacting to an event may register a new subscription
	// without deadlocking the publisher.
	h := NewHub[int]()
	s := h.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.Next(context.Background()); err != nil {
			t.Errorf("next: %v", err)
			return
		}
		s2 := h.Subscribe()
		h.Publish(2)
		if v, err := s2.Next(context.Background()); err != nil || v != 2 {
			t.Errorf("nested subscribe: v=%d err=%v", v, err)
		}
	}()
	h.Publish(1)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("reentrant subscribe deadlocked")
	}
}
