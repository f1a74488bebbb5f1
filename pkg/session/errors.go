package session

import (
	"errors"
	"fmt"
)

// Error taxonomy for the engine. Transport and codec failures wrap the
// underlying error; match with errors.Is.
var (
	// ErrSessionUnsupported: the platform or device cannot host a peer link.
	ErrSessionUnsupported = errors.New("session unsupported")
	// ErrNoCounterpart: the peer is unreachable and not installed, or a
	// binary send was attempted while unreachable.
	ErrNoCounterpart = errors.New("no counterpart")
	// ErrTransportFailure: the underlying transport reported an error.
	ErrTransportFailure = errors.New("transport failure")
)

// transportFailure tags err so callers can match both the taxonomy class
// and the original transport error.
func transportFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}
