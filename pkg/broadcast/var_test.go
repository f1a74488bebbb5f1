package broadcast

import (
	"context"
	"testing"
	"time"
)

func TestVarLoadStore(t *testing.T) {
	v := NewVar(false)
	if v.Load() {
		t.Fatalf("initial value")
	}
	v.Store(true)
	if !v.Load() {
		t.Fatalf("store not visible")
	}
}

func TestWatchReplaysCurrentValue(t *testing.T) {
	v := NewVar(42)
	w := v.Watch()
	got, err := w.Next(context.Background())
	if err != nil || got != 42 {
		t.Fatalf("watch should start with current value: got=%d err=%v", got, err)
	}
}

func TestWatchCoalescesToLatest(t *testing.T) {
	v := NewVar(0)
	w := v.Watch()
	// Drain the replayed initial value first.
	if got, err := w.Next(context.Background()); err != nil || got != 0 {
		t.Fatalf("initial: got=%d err=%v", got, err)
	}
	for n := 1; n <= 100; n++ {
		v.Store(n)
	}
	got, err := w.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != 100 {
		t.Fatalf("slow watcher should converge on newest value, got %d", got)
	}
}

func TestWatchSeesSubsequentStores(t *testing.T) {
	v := NewVar("a")
	w := v.Watch()
	if got, _ := w.Next(context.Background()); got != "a" {
		t.Fatalf("initial: %q", got)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		v.Store("b")
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if got, err := w.Next(ctx); err != nil || got != "b" {
		t.Fatalf("update: got=%q err=%v", got, err)
	}
}

func TestVarClose(t *testing.T) {
	v := NewVar(1)
	w := v.Watch()
	v.Close()
	// The replayed value was discarded by Cancel; Next reports cancellation.
	if _, err := w.Next(context.Background()); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
