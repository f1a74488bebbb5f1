package session

import (
	"github.com/brightdigit/SundialKit-sub003/pkg/transport"
)

// Route is the delivery plan computed for one send.
type Route int

const (
	// RouteNone: no channel can carry the message in the given state.
	RouteNone Route = iota
	// RouteInteractive: immediate round trip over the dictionary channel.
	RouteInteractive
	// RouteQueued: best-effort background delivery, no reply.
	RouteQueued
	// RouteBinary: immediate round trip over the raw-byte channel.
	RouteBinary
)

func (r Route) String() string {
	switch r {
	case RouteInteractive:
		return "interactive"
	case RouteQueued:
		return "queued"
	case RouteBinary:
		return "binary"
	default:
		return "none"
	}
}

// Kind maps the route to its transport channel kind.
func (r Route) Kind() transport.Kind {
	switch r {
	case RouteInteractive:
		return transport.KindInteractive
	case RouteQueued:
		return transport.KindQueued
	case RouteBinary:
		return transport.KindBinary
	default:
		return transport.KindUnknown
	}
}

// SelectRoute is a pure function from a state snapshot and message shape to
// a delivery plan. No side effects, no I/O; this is the entire arbitration
// policy.
//
// Binary-capable messages require immediate reachability and have no
// queued fallback, while dictionary messages fall back to the queued
// channel when the peer app is installed. The asymmetry is deliberate and
// must not be unified.
func SelectRoute(st State, binary bool) (Route, error) {
	if binary {
		if st.Reachable {
			return RouteBinary, nil
		}
		return RouteNone, ErrNoCounterpart
	}
	if st.Reachable {
		return RouteInteractive, nil
	}
	if st.PeerInstalled {
		return RouteQueued, nil
	}
	return RouteNone, ErrNoCounterpart
}
