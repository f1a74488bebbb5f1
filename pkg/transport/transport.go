package transport

import (
	"github.com/brightdigit/SundialKit-sub003/pkg/protocol"
)

// Kind identifies a delivery channel for policy decisions and outcomes.
type Kind int

const (
	KindUnknown Kind = iota
	KindInteractive
	KindQueued
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindInteractive:
		return "interactive"
	case KindQueued:
		return "queued"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ActivationState tracks the link lifecycle. Transitions originate only in
// the link itself and are reported through the Delegate.
type ActivationState int

const (
	NotActivated ActivationState = iota
	Inactive
	Activated
)

func (s ActivationState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Activated:
		return "activated"
	default:
		return "not-activated"
	}
}

// Completion receives the terminal result of an interactive send: the
// peer's reply, or the transport error. Called exactly once, from an
// unspecified goroutine.
type Completion func(reply protocol.Generic, err error)

// BinaryCompletion is the binary-channel analog of Completion.
type BinaryCompletion func(reply []byte, err error)

// ReplyFunc completes the peer's waiting interactive call. It must be
// invoked exactly once per inbound interactive message.
type ReplyFunc func(reply protocol.Generic)

// BinaryReplyFunc completes the peer's waiting binary call. A nil reply is
// valid and still releases the sender.
type BinaryReplyFunc func(reply []byte)

// Session abstracts the underlying peer link. Implementations are owned by
// the host platform; pkg/transport/mem provides an in-process loopback.
//
// State getters return the link's current view and may be read from any
// goroutine. Sends may be called concurrently.
type Session interface {
	ActivationState() ActivationState
	Reachable() bool
	PeerInstalled() bool
	// PeerPaired reports the pairing state and whether the platform
	// exposes one at all (supported == false on platforms without it).
	PeerPaired() (paired, supported bool)

	// Activate requests link activation. Completion is reported through
	// Delegate.ActivationDone, never synchronously.
	Activate() error

	// SendInteractive delivers msg for an immediate round trip; done is
	// invoked exactly once with the peer reply or the transport error.
	SendInteractive(msg protocol.Generic, done Completion)

	// SendQueued hands msg to the best-effort background channel. The
	// error reflects acceptance only; there is no delivery callback.
	SendQueued(msg protocol.Generic) error

	// SendBinary delivers raw bytes for an immediate round trip.
	SendBinary(data []byte, done BinaryCompletion)

	// SetDelegate installs the single callback sink. Must be called
	// before Activate.
	SetDelegate(d Delegate)
}

// Delegate is the single push-notification sink for a Session. Every
// method may be called from any goroutine at any time; implementations
// must do their own serialization.
type Delegate interface {
	// ActivationDone reports the result of an Activate request.
	ActivationDone(state ActivationState, err error)
	// BecameInactive signals a transition to Inactive.
	BecameInactive()
	// Deactivated signals the link has shut down.
	Deactivated()
	// ReachabilityChanged reports the new reachability.
	ReachabilityChanged(reachable bool)
	// PeerStateChanged reports changes to installed/paired.
	PeerStateChanged()
	// InteractiveReceived delivers an inbound round-trip message; reply
	// must be invoked exactly once.
	InteractiveReceived(msg protocol.Generic, reply ReplyFunc)
	// ContextReceived delivers an inbound background message.
	ContextReceived(msg protocol.Generic)
	// BinaryReceived delivers inbound raw bytes; reply must be invoked
	// to release the sender even when no payload is produced.
	BinaryReceived(data []byte, reply BinaryReplyFunc)
}
