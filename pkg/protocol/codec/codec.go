// Package codec provides byte-level codecs for framing generic messages and
// binary payloads across a link.
package codec

import "sync"

// Codec marshals values to bytes and back. Implementations should be
// deterministic so both ends of a link agree on the wire form.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Well-known content types.
const (
	ContentJSON  = "application/json"
	ContentCBOR  = "application/cbor"
	ContentProto = "application/x-protobuf"
)

// Registry maps content types to codecs. Lookups may race registrations.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Codec
}

// NewRegistry constructs a registry preloaded with the codecs that need no
// initialization: JSON and Protobuf. CBOR is added via Register(CBOR()).
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	return r
}

// Register adds (or replaces) a codec under its content type.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[c.ContentType()] = c
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[contentType]
}
