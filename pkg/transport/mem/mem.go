// Package mem provides an in-process loopback link: two cross-wired
// endpoints that behave like a paired device pair. Useful for tests and as
// a stand-in where no platform link exists.
//
// Dictionary payloads really cross a codec (canonical CBOR) so both ends
// see post-wire value types, not shared Go maps.
package mem

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brightdigit/SundialKit-sub003/pkg/protocol"
	"github.com/brightdigit/SundialKit-sub003/pkg/protocol/codec"
	"github.com/brightdigit/SundialKit-sub003/pkg/transport"
)

// Link-level errors surfaced through send completions.
var (
	ErrNotReachable    = errors.New("mem: peer not reachable")
	ErrNotInstalled    = errors.New("mem: peer app not installed")
	ErrNoDelegate      = errors.New("mem: no delegate installed")
	ErrNotActivated    = errors.New("mem: endpoint not activated")
	ErrPeerUnavailable = errors.New("mem: peer endpoint has no delegate")
)

// Options tune a pair of endpoints.
type Options struct {
	// Latency is applied to every delivery, simulating the radio hop.
	Latency time.Duration
	// PairingSupported makes the endpoints report a pairing state, the
	// way a primary-device platform does.
	PairingSupported bool
}

// Endpoint is one side of the loopback link. It implements
// transport.Session; the test-control methods (SetReachable,
// SetPeerInstalled, SetPaired, Deactivate) stand in for the OS events a
// real link would deliver.
type Endpoint struct {
	name string
	opts Options
	wire codec.Codec
	peer *Endpoint

	mu        sync.Mutex
	state     transport.ActivationState
	reachable bool
	installed bool
	paired    bool
	delegate  transport.Delegate

	// pendingCtx is the queued-channel outbox. The queued channel is
	// latest-wins: a newer context replaces an unsent one.
	pendingCtx protocol.Generic
}

// NewPair returns two cross-wired endpoints named "primary" and
// "companion". Both start NotActivated, unreachable, peer installed.
func NewPair(opts Options) (primary, companion *Endpoint, err error) {
	wire, err := codec.CBOR()
	if err != nil {
		return nil, nil, fmt.Errorf("mem: wire codec: %w", err)
	}
	primary = &Endpoint{name: "primary", opts: opts, wire: wire, installed: true}
	companion = &Endpoint{name: "companion", opts: opts, wire: wire, installed: true}
	primary.peer = companion
	companion.peer = primary
	return primary, companion, nil
}

// Name identifies the endpoint in logs.
func (e *Endpoint) Name() string { return e.name }

func (e *Endpoint) ActivationState() transport.ActivationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Endpoint) Reachable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reachable
}

func (e *Endpoint) PeerInstalled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installed
}

func (e *Endpoint) PeerPaired() (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.opts.PairingSupported {
		return false, false
	}
	return e.paired, true
}

func (e *Endpoint) SetDelegate(d transport.Delegate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delegate = d
}

// Activate transitions the endpoint to Activated and reports completion
// asynchronously, the way a platform link does.
func (e *Endpoint) Activate() error {
	e.mu.Lock()
	d := e.delegate
	if d == nil {
		e.mu.Unlock()
		return ErrNoDelegate
	}
	e.state = transport.Activated
	e.mu.Unlock()

	e.deliver(func() {
		d.ActivationDone(transport.Activated, nil)
	})
	return nil
}

// SendInteractive encodes msg across the wire codec and hands it to the
// peer delegate; the peer's reply crosses the codec back into done.
func (e *Endpoint) SendInteractive(msg protocol.Generic, done transport.Completion) {
	e.mu.Lock()
	state, reachable := e.state, e.reachable
	e.mu.Unlock()
	if state != transport.Activated {
		e.complete(func() { done(nil, ErrNotActivated) })
		return
	}
	if !reachable {
		e.complete(func() { done(nil, ErrNotReachable) })
		return
	}
	wired, err := e.roundTrip(msg)
	if err != nil {
		e.complete(func() { done(nil, err) })
		return
	}
	peer := e.peer
	e.deliver(func() {
		d := peer.currentDelegate()
		if d == nil {
			done(nil, ErrPeerUnavailable)
			return
		}
		d.InteractiveReceived(wired, func(reply protocol.Generic) {
			back, err := e.roundTrip(reply)
			if err != nil {
				done(nil, err)
				return
			}
			done(back, nil)
		})
	})
}

// SendQueued stores msg in the latest-wins outbox. It is flushed to the
// peer when this endpoint regains reachability.
func (e *Endpoint) SendQueued(msg protocol.Generic) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != transport.Activated {
		return ErrNotActivated
	}
	if !e.installed {
		return ErrNotInstalled
	}
	wired, err := e.roundTrip(msg)
	if err != nil {
		return err
	}
	if e.reachable {
		// Nothing to hold back; deliver straight away.
		peer := e.peer
		e.deliver(func() {
			if d := peer.currentDelegate(); d != nil {
				d.ContextReceived(wired)
			}
		})
		return nil
	}
	if e.pendingCtx != nil {
		zap.L().Debug("mem: replacing pending context", zap.String("endpoint", e.name))
	}
	e.pendingCtx = wired
	return nil
}

// SendBinary delivers raw bytes to the peer. There is no queued path: an
// unreachable peer fails the completion immediately.
func (e *Endpoint) SendBinary(data []byte, done transport.BinaryCompletion) {
	e.mu.Lock()
	state, reachable := e.state, e.reachable
	e.mu.Unlock()
	if state != transport.Activated {
		e.complete(func() { done(nil, ErrNotActivated) })
		return
	}
	if !reachable {
		e.complete(func() { done(nil, ErrNotReachable) })
		return
	}
	buf := append([]byte(nil), data...)
	peer := e.peer
	e.deliver(func() {
		d := peer.currentDelegate()
		if d == nil {
			done(nil, ErrPeerUnavailable)
			return
		}
		d.BinaryReceived(buf, func(reply []byte) {
			done(append([]byte(nil), reply...), nil)
		})
	})
}

// SetReachable flips this endpoint's view of the peer and notifies the
// delegate. Regaining reachability flushes the queued outbox.
func (e *Endpoint) SetReachable(reachable bool) {
	e.mu.Lock()
	e.reachable = reachable
	d := e.delegate
	var flush protocol.Generic
	if reachable && e.pendingCtx != nil {
		flush = e.pendingCtx
		e.pendingCtx = nil
	}
	e.mu.Unlock()

	if d != nil {
		e.deliver(func() { d.ReachabilityChanged(reachable) })
	}
	if flush != nil {
		peer := e.peer
		e.deliver(func() {
			if pd := peer.currentDelegate(); pd != nil {
				pd.ContextReceived(flush)
			}
		})
	}
}

// SetPeerInstalled flips the installed flag and notifies the delegate.
func (e *Endpoint) SetPeerInstalled(installed bool) {
	e.mu.Lock()
	e.installed = installed
	d := e.delegate
	e.mu.Unlock()
	if d != nil {
		e.deliver(func() { d.PeerStateChanged() })
	}
}

// SetPaired flips the pairing flag and notifies the delegate. No-op when
// pairing is unsupported.
func (e *Endpoint) SetPaired(paired bool) {
	if !e.opts.PairingSupported {
		return
	}
	e.mu.Lock()
	e.paired = paired
	d := e.delegate
	e.mu.Unlock()
	if d != nil {
		e.deliver(func() { d.PeerStateChanged() })
	}
}

// Deactivate shuts the endpoint down and notifies the delegate.
func (e *Endpoint) Deactivate() {
	e.mu.Lock()
	e.state = transport.NotActivated
	d := e.delegate
	e.mu.Unlock()
	if d != nil {
		e.deliver(func() { d.Deactivated() })
	}
}

func (e *Endpoint) currentDelegate() transport.Delegate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delegate
}

// roundTrip pushes g through the wire codec so the receiver sees decoded
// types, exactly as after a real transfer.
func (e *Endpoint) roundTrip(g protocol.Generic) (protocol.Generic, error) {
	if g == nil {
		return nil, nil
	}
	raw, err := e.wire.Marshal(map[string]any(g))
	if err != nil {
		return nil, fmt.Errorf("mem: encode: %w", err)
	}
	var out map[string]any
	if err := e.wire.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mem: decode: %w", err)
	}
	return protocol.Generic(out), nil
}

// deliver runs fn on a fresh goroutine after the configured latency,
// mimicking a push source that fires from unspecified threads.
func (e *Endpoint) deliver(fn func()) {
	latency := e.opts.Latency
	go func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		fn()
	}()
}

// complete reports a local failure asynchronously so callers observe one
// consistent completion model.
func (e *Endpoint) complete(fn func()) {
	go fn()
}
