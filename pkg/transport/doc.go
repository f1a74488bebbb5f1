// Package transport defines the boundary to the underlying peer link.
//
// The physical link (radio, socket, OS framework) lives outside this
// module; the engine consumes it only through the Session interface and
// feeds it state through a single Delegate sink. Delegate callbacks may
// arrive concurrently from arbitrary goroutines and carry no ordering
// guarantees beyond what the link itself provides.
package transport
