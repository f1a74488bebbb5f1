package session

import (
	"github.com/brightdigit/SundialKit-sub003/pkg/protocol"
	"github.com/brightdigit/SundialKit-sub003/pkg/transport"
)

// OutcomeKind discriminates the send outcome union.
type OutcomeKind int

const (
	// OutcomeFailed: the send produced no delivery; Err is set.
	OutcomeFailed OutcomeKind = iota
	// OutcomeDelivered: the peer answered; Reply or ReplyData is set.
	OutcomeDelivered
	// OutcomeQueued: accepted for background delivery on Transport.
	OutcomeQueued
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeQueued:
		return "queued"
	default:
		return "failed"
	}
}

// Outcome is the single terminal result of one Send call. Exactly one
// outcome is produced per call and the same value is published on the
// send-result hub for passive observers.
type Outcome struct {
	Kind      OutcomeKind
	Transport transport.Kind
	Reply     protocol.Generic // dictionary reply, when delivered interactively
	ReplyData []byte           // binary reply, when delivered over the binary channel
	Err       error            // set only when Kind == OutcomeFailed
}

func failed(kind transport.Kind, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Transport: kind, Err: err}
}

// ActivationResult reports the completion of an activation request,
// successful or not.
type ActivationResult struct {
	State transport.ActivationState
	Err   error
}

// ReceiveEvent is one inbound raw message. Interactive events carry a
// Reply that the consumer must invoke exactly once; duplicate invocations
// are ignored. Context events have no reply channel. Binary events carry
// the raw bytes; the engine releases the sender itself after fan-out.
type ReceiveEvent struct {
	Kind    transport.Kind
	Message protocol.Generic // dictionary payload, nil for binary events
	Data    []byte           // raw payload, binary events only
	Reply   transport.ReplyFunc
}
