package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/brightdigit/SundialKit-sub003/pkg/broadcast"
	"github.com/brightdigit/SundialKit-sub003/pkg/protocol"
	"github.com/brightdigit/SundialKit-sub003/pkg/transport"
)

// SendOptions adjust a single Send call.
type SendOptions struct {
	// ForceDictionary routes a binary-capable message over the dictionary
	// channel, re-enabling the queued fallback.
	ForceDictionary bool
}

// Config wires a Controller's collaborators.
type Config struct {
	// Registry resolves inbound type keys. A fresh empty registry is used
	// when nil.
	Registry *protocol.Registry
	// BinaryTypeKey names the type attempted for inbound binary payloads.
	// The binary channel carries no envelope, so this knowledge is
	// necessarily out of band. Empty disables binary decoding.
	BinaryTypeKey string
}

// Controller orchestrates one peer link: it owns the state snapshot,
// serializes the link's delegate callbacks, routes outgoing sends, and
// publishes every transition and inbound message.
//
// All state mutation happens inside one mutex-guarded serialization
// domain. Publication only appends to subscription buffers, so holding the
// domain across it is deadlock-free and keeps event order consistent with
// mutation order.
type Controller struct {
	link   transport.Session
	reg    *protocol.Registry
	binKey string

	mu        sync.Mutex
	st        State
	requested bool // an Activate call is outstanding or satisfied

	actVar       *broadcast.Var[transport.ActivationState]
	reachVar     *broadcast.Var[bool]
	installedVar *broadcast.Var[bool]
	pairedVar    *broadcast.Var[Pairing]

	activations *broadcast.Hub[ActivationResult]
	raw         *broadcast.Hub[ReceiveEvent]
	typed       *broadcast.Hub[protocol.Typed]
	results     *broadcast.Hub[Outcome]
	diags       *broadcast.Hub[error]
}

// New builds a Controller over link and installs itself as the link's
// delegate. The link must not have a delegate yet.
func New(link transport.Session, cfg Config) *Controller {
	reg := cfg.Registry
	if reg == nil {
		reg = protocol.NewRegistry()
	}
	pairing, paired := pairingOf(link)
	c := &Controller{
		link:   link,
		reg:    reg,
		binKey: cfg.BinaryTypeKey,
		st: State{
			Activation:    link.ActivationState(),
			Reachable:     link.Reachable(),
			PeerInstalled: link.PeerInstalled(),
			PeerPaired:    paired,
		},
		activations: broadcast.NewHub[ActivationResult](),
		raw:         broadcast.NewHub[ReceiveEvent](),
		typed:       broadcast.NewHub[protocol.Typed](),
		results:     broadcast.NewHub[Outcome](),
		diags:       broadcast.NewHub[error](),
	}
	c.actVar = broadcast.NewVar(c.st.Activation)
	c.reachVar = broadcast.NewVar(c.st.Reachable)
	c.installedVar = broadcast.NewVar(c.st.PeerInstalled)
	c.pairedVar = broadcast.NewVar(pairing)
	link.SetDelegate(&linkDelegate{c: c})
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Registry exposes the type registry for application registrations.
func (c *Controller) Registry() *protocol.Registry { return c.reg }

// Activate requests link activation. Idempotent: once a request has been
// accepted, further calls are no-ops until the link deactivates. The call
// only requests activation; the Activated/Inactive transition arrives
// later through the activation observables.
func (c *Controller) Activate() error {
	c.mu.Lock()
	if c.requested {
		c.mu.Unlock()
		return nil
	}
	c.requested = true
	c.mu.Unlock()

	if err := c.link.Activate(); err != nil {
		c.mu.Lock()
		c.requested = false
		c.mu.Unlock()
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// Send routes msg according to the current state snapshot and returns its
// single terminal outcome. The same outcome is published on SendResults.
//
// Interactive and binary sends suspend until the transport completes; a
// cancelled ctx abandons the wait but never the attempt: the link has no
// cancellation primitive, so the attempt runs to completion and its result
// reaches observers even when the caller is gone.
func (c *Controller) Send(ctx context.Context, msg protocol.Typed, opts SendOptions) Outcome {
	snap := c.State()
	_, binCapable := msg.(protocol.BinaryTyped)
	binary := binCapable && !opts.ForceDictionary

	route, rerr := SelectRoute(snap, binary)
	if route == RouteNone {
		return c.finish(failed(transport.KindUnknown, rerr))
	}

	payload, err := protocol.Encode(msg, protocol.EncodeOptions{ForceDictionary: opts.ForceDictionary})
	if err != nil {
		return c.finish(failed(route.Kind(), err))
	}

	switch route {
	case RouteQueued:
		if err := c.link.SendQueued(payload.Dict); err != nil {
			return c.finish(failed(transport.KindQueued, transportFailure(err)))
		}
		return c.finish(Outcome{Kind: OutcomeQueued, Transport: transport.KindQueued})

	case RouteInteractive:
		ch := make(chan Outcome, 1)
		c.link.SendInteractive(payload.Dict, func(reply protocol.Generic, err error) {
			out := Outcome{Kind: OutcomeDelivered, Transport: transport.KindInteractive, Reply: reply}
			if err != nil {
				out = failed(transport.KindInteractive, transportFailure(err))
			}
			ch <- c.finish(out)
		})
		return c.await(ctx, transport.KindInteractive, ch)

	default: // RouteBinary
		ch := make(chan Outcome, 1)
		c.link.SendBinary(payload.Data, func(reply []byte, err error) {
			out := Outcome{Kind: OutcomeDelivered, Transport: transport.KindBinary, ReplyData: reply}
			if err != nil {
				out = failed(transport.KindBinary, transportFailure(err))
			}
			ch <- c.finish(out)
		})
		return c.await(ctx, transport.KindBinary, ch)
	}
}

// finish publishes out for passive observers and hands it back.
func (c *Controller) finish(out Outcome) Outcome {
	c.results.Publish(out)
	return out
}

// await bridges the single-shot completion into the caller's context. The
// ctx branch returns an unpublished local outcome: the attempt's real
// result is published by the completion when it eventually fires.
func (c *Controller) await(ctx context.Context, kind transport.Kind, ch <-chan Outcome) Outcome {
	select {
	case out := <-ch:
		return out
	case <-ctx.Done():
		return failed(kind, ctx.Err())
	}
}

// ActivationState is the level-triggered activation observable.
func (c *Controller) ActivationState() *broadcast.Var[transport.ActivationState] { return c.actVar }

// Reachability is the level-triggered reachability observable.
func (c *Controller) Reachability() *broadcast.Var[bool] { return c.reachVar }

// PeerInstalled is the level-triggered peer-installed observable.
func (c *Controller) PeerInstalled() *broadcast.Var[bool] { return c.installedVar }

// PeerPaired is the level-triggered pairing observable.
func (c *Controller) PeerPaired() *broadcast.Var[Pairing] { return c.pairedVar }

// ActivationResults streams activation completions, including failures.
func (c *Controller) ActivationResults() *broadcast.Hub[ActivationResult] { return c.activations }

// Received streams every inbound raw message.
func (c *Controller) Received() *broadcast.Hub[ReceiveEvent] { return c.raw }

// TypedReceived streams inbound messages that decoded through the registry.
func (c *Controller) TypedReceived() *broadcast.Hub[protocol.Typed] { return c.typed }

// SendResults streams the outcome of every send.
func (c *Controller) SendResults() *broadcast.Hub[Outcome] { return c.results }

// DecodeDiagnostics streams decode failures. Failures here never suppress
// the raw event.
func (c *Controller) DecodeDiagnostics() *broadcast.Hub[error] { return c.diags }

// Close cancels every subscription on every observable.
func (c *Controller) Close() {
	c.activations.Close()
	c.raw.Close()
	c.typed.Close()
	c.results.Close()
	c.diags.Close()
	c.actVar.Close()
	c.reachVar.Close()
	c.installedVar.Close()
	c.pairedVar.Close()
}

// linkDelegate receives the link's push callbacks. Every entry point may
// fire from any goroutine and immediately marshals into the controller's
// serialization domain.
type linkDelegate struct {
	c *Controller
}

func (d *linkDelegate) ActivationDone(state transport.ActivationState, err error) {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Activation = state
	if state != transport.Activated {
		// The request was consumed without producing an active link;
		// a later Activate must reach the link again.
		c.requested = false
	}
	c.st.Reachable = c.link.Reachable()
	c.st.PeerInstalled = c.link.PeerInstalled()
	pairing, paired := pairingOf(c.link)
	c.st.PeerPaired = paired
	c.actVar.Store(state)
	c.reachVar.Store(c.st.Reachable)
	c.installedVar.Store(c.st.PeerInstalled)
	c.pairedVar.Store(pairing)
	c.activations.Publish(ActivationResult{State: state, Err: err})
	if err != nil {
		zap.L().Warn("session activation failed", zap.Error(err))
	} else {
		zap.L().Debug("session activation done", zap.Stringer("state", state))
	}
}

func (d *linkDelegate) BecameInactive() {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Activation = transport.Inactive
	c.actVar.Store(transport.Inactive)
}

func (d *linkDelegate) Deactivated() {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Activation = transport.NotActivated
	c.requested = false // allow re-activation
	c.actVar.Store(transport.NotActivated)
}

func (d *linkDelegate) ReachabilityChanged(reachable bool) {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Reachable = reachable
	c.reachVar.Store(reachable)
}

func (d *linkDelegate) PeerStateChanged() {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.PeerInstalled = c.link.PeerInstalled()
	pairing, paired := pairingOf(c.link)
	c.st.PeerPaired = paired
	c.installedVar.Store(c.st.PeerInstalled)
	c.pairedVar.Store(pairing)
}

func (d *linkDelegate) InteractiveReceived(msg protocol.Generic, reply transport.ReplyFunc) {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.Publish(ReceiveEvent{
		Kind:    transport.KindInteractive,
		Message: msg,
		Reply:   onceReply(reply),
	})
	c.decodeDictLocked(msg)
}

func (d *linkDelegate) ContextReceived(msg protocol.Generic) {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.Publish(ReceiveEvent{Kind: transport.KindQueued, Message: msg})
	c.decodeDictLocked(msg)
}

func (d *linkDelegate) BinaryReceived(data []byte, reply transport.BinaryReplyFunc) {
	c := d.c
	c.mu.Lock()
	c.raw.Publish(ReceiveEvent{Kind: transport.KindBinary, Data: data})
	if c.binKey != "" {
		msg, ok, err := c.reg.DecodeBinary(c.binKey, data)
		if err != nil {
			c.diags.Publish(err)
		}
		if ok {
			c.typed.Publish(msg)
		}
	}
	c.mu.Unlock()
	// No reply payload is produced on this path, but the sender's call
	// must still complete.
	reply(nil)
}

// decodeDictLocked attempts the typed decode of an inbound dictionary. A
// decode failure is diagnostic only; the raw event has already gone out.
func (c *Controller) decodeDictLocked(msg protocol.Generic) {
	typed, ok, err := c.reg.Decode(msg)
	if err != nil {
		c.diags.Publish(err)
		zap.L().Debug("inbound decode failed", zap.Error(err))
		return
	}
	if ok {
		c.typed.Publish(typed)
	}
}

// onceReply makes duplicate reply invocations harmless: the first caller
// completes the peer, the rest are ignored.
func onceReply(fn transport.ReplyFunc) transport.ReplyFunc {
	var once sync.Once
	return func(r protocol.Generic) {
		once.Do(func() { fn(r) })
	}
}
