package protocol

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Codec error classes. Callers match with errors.Is.
var (
	ErrEncodeFailure = errors.New("encode failure")
	ErrDecodeFailure = errors.New("decode failure")
)

// DecodeFunc reconstructs a typed message from its envelope parameters.
type DecodeFunc func(Generic) (Typed, error)

// BinaryDecodeFunc reconstructs a typed message from a raw payload.
type BinaryDecodeFunc func([]byte) (Typed, error)

type entry struct {
	decode       DecodeFunc
	decodeBinary BinaryDecodeFunc
}

// Registry maps type keys to decode routines. Registration is append-mostly
// and safe against concurrent decodes; collisions follow a single documented
// policy: the last registration wins and the replacement is logged.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{byKey: make(map[string]entry)} }

// Register associates key with a dictionary decode routine.
// Re-registering a key replaces the previous routine (last wins).
func (r *Registry) Register(key string, fn DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byKey[key]
	if e.decode != nil {
		zap.L().Warn("type registry: replacing decoder", zap.String("typeKey", key))
	}
	e.decode = fn
	r.byKey[key] = e
}

// RegisterBinary associates key with a binary decode routine, alongside any
// dictionary routine already registered for the same key. Last wins.
func (r *Registry) RegisterBinary(key string, fn BinaryDecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byKey[key]
	if e.decodeBinary != nil {
		zap.L().Warn("type registry: replacing binary decoder", zap.String("typeKey", key))
	}
	e.decodeBinary = fn
	r.byKey[key] = e
}

// Keys returns all registered type keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EncodeOptions adjust the Encode path.
type EncodeOptions struct {
	// ForceDictionary suppresses the binary form even for BinaryTyped
	// messages, forcing the enveloped dictionary form.
	ForceDictionary bool
}

// Payload is the encoded form of a typed message: exactly one of the binary
// or dictionary representations is populated.
type Payload struct {
	Binary bool
	Data   []byte  // set when Binary
	Dict   Generic // set otherwise; enveloped {typeKey, parameters}
}

// Encode serializes msg, preferring the binary form when the type supports
// it and the caller has not forced dictionary encoding.
func Encode(msg Typed, opts EncodeOptions) (Payload, error) {
	if bm, ok := msg.(BinaryTyped); ok && !opts.ForceDictionary {
		data, err := bm.MarshalPayload()
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %s: %v", ErrEncodeFailure, msg.TypeKey(), err)
		}
		return Payload{Binary: true, Data: data}, nil
	}
	params, err := msg.MarshalGeneric()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrEncodeFailure, msg.TypeKey(), err)
	}
	if err := params.Validate(); err != nil {
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrEncodeFailure, msg.TypeKey(), err)
	}
	return Payload{Dict: Generic{KeyType: msg.TypeKey(), KeyParams: params}}, nil
}

// Decode inspects g for a typed envelope and runs the registered routine.
// A missing envelope or an unregistered type key is not an error: the
// message is simply undecodable (ok == false) and the raw path still
// functions. A registered routine failing is a real decode failure.
func (r *Registry) Decode(g Generic) (msg Typed, ok bool, err error) {
	if !g.IsEnvelope() {
		return nil, false, nil
	}
	key := g.String(KeyType)
	r.mu.RLock()
	e, found := r.byKey[key]
	r.mu.RUnlock()
	if !found || e.decode == nil {
		return nil, false, nil
	}
	params, _ := g.Params(KeyParams)
	msg, err = e.decode(params)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, key, err)
	}
	return msg, true, nil
}

// DecodeBinary runs the binary routine registered for key against data.
// The binary path carries no envelope, so the caller must already know
// which type to attempt. An unregistered key is undecodable; a key that is
// registered without a binary routine is a decode failure.
func (r *Registry) DecodeBinary(key string, data []byte) (msg Typed, ok bool, err error) {
	r.mu.RLock()
	e, found := r.byKey[key]
	r.mu.RUnlock()
	if !found {
		return nil, false, nil
	}
	if e.decodeBinary == nil {
		return nil, false, fmt.Errorf("%w: %s: no binary decoder", ErrDecodeFailure, key)
	}
	msg, err = e.decodeBinary(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, key, err)
	}
	return msg, true, nil
}
