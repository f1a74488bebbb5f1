// Package session implements the session controller: it tracks the live
// state of the peer link, routes outgoing messages to a delivery channel
// based on a state snapshot, decodes inbound payloads through the type
// registry, and fans everything out to independent consumers.
package session

import (
	"github.com/brightdigit/SundialKit-sub003/pkg/transport"
)

// State is an immutable snapshot of the link at a point in time. Every
// routing decision operates on one snapshot taken at call time, never on a
// moving read.
type State struct {
	Activation    transport.ActivationState
	Reachable     bool
	PeerInstalled bool
	// PeerPaired is nil on platforms that do not expose pairing.
	PeerPaired *bool
}

// Pairing is the level-triggered view of the optional pairing state.
type Pairing struct {
	Paired    bool
	Supported bool
}

func pairingOf(link transport.Session) (Pairing, *bool) {
	paired, supported := link.PeerPaired()
	if !supported {
		return Pairing{}, nil
	}
	p := paired
	return Pairing{Paired: paired, Supported: true}, &p
}
