package broadcast

import "sync"

// Var holds a level-triggered value. Readers either poll Load or Watch a
// coalescing subscription that always starts with the current value and
// thereafter skips intermediate values the consumer was too slow to see.
type Var[T any] struct {
	mu  sync.Mutex
	val T
	hub *Hub[T]
}

// NewVar returns a var holding initial.
func NewVar[T any](initial T) *Var[T] {
	return &Var[T]{val: initial, hub: NewHub[T]()}
}

// Load returns the current value.
func (v *Var[T]) Load() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val
}

// Store publishes a new value. Holding the var lock across the publish
// keeps watcher delivery order consistent with Load; publish only appends
// to subscription buffers and never runs consumer code.
func (v *Var[T]) Store(nv T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.val = nv
	v.hub.Publish(nv)
}

// Watch subscribes to value changes. The current value is delivered
// immediately; later values coalesce so the consumer always converges on
// the newest one.
func (v *Var[T]) Watch() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.hub.add(newSubscription[T](true))
	s.push(v.val)
	return s
}

// Close cancels all watchers.
func (v *Var[T]) Close() {
	v.hub.Close()
}
