// Package protocol defines the generic wire message, the typed-message
// capability interfaces, and the runtime type registry that bridges them.
package protocol

import (
	"fmt"
	"math"
)

// Reserved envelope keys for the dictionary transport. A typed message is
// carried as {KeyType: <typeKey>, KeyParams: <nested Generic>}.
const (
	KeyType   = "typeKey"
	KeyParams = "parameters"
)

// Generic is the dictionary-transport wire form: a flat mapping of string
// keys to scalar values (bool, integer, float, string, byte blob). A nested
// Generic is permitted as a value only to carry the envelope's parameters.
type Generic map[string]any

// Validate checks that every value is a supported scalar or a nested
// Generic that itself validates.
func (g Generic) Validate() error {
	for k, v := range g {
		switch t := v.(type) {
		case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64, string, []byte:
		case Generic:
			if err := t.Validate(); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		case map[string]any:
			if err := Generic(t).Validate(); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		default:
			return fmt.Errorf("key %q: unsupported value type %T", k, v)
		}
	}
	return nil
}

// Clone returns a shallow copy one level deep; nested Generic values are
// cloned recursively, byte blobs are copied.
func (g Generic) Clone() Generic {
	if g == nil {
		return nil
	}
	out := make(Generic, len(g))
	for k, v := range g {
		switch t := v.(type) {
		case Generic:
			out[k] = t.Clone()
		case map[string]any:
			out[k] = Generic(t).Clone()
		case []byte:
			out[k] = append([]byte(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the string value for key, or "".
func (g Generic) String(key string) string {
	s, _ := g[key].(string)
	return s
}

// Bool returns the bool value for key, or false.
func (g Generic) Bool(key string) bool {
	b, _ := g[key].(bool)
	return b
}

// Int returns the value for key coerced to int64. Codecs are free to decode
// integers as any Go numeric type, so all of them are accepted.
func (g Generic) Int(key string) (int64, bool) {
	switch t := g[key].(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float32:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

// Float returns the value for key coerced to float64.
func (g Generic) Float(key string) (float64, bool) {
	switch t := g[key].(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		if n, ok := g.Int(key); ok {
			return float64(n), true
		}
		return 0, false
	}
}

// Bytes returns the byte blob for key, or nil.
func (g Generic) Bytes(key string) []byte {
	b, _ := g[key].([]byte)
	return b
}

// Params returns the nested Generic for key, tolerating the plain-map form
// codecs produce after a decode round trip.
func (g Generic) Params(key string) (Generic, bool) {
	switch t := g[key].(type) {
	case Generic:
		return t, true
	case map[string]any:
		return Generic(t), true
	default:
		return nil, false
	}
}

// IsEnvelope reports whether g carries a typed-message envelope.
func (g Generic) IsEnvelope() bool {
	if _, ok := g[KeyType].(string); !ok {
		return false
	}
	_, ok := g.Params(KeyParams)
	return ok
}

// Typed is a message that can render itself as a Generic for the
// dictionary transport. Decoding is registered separately (see Registry).
type Typed interface {
	TypeKey() string
	MarshalGeneric() (Generic, error)
}

// BinaryTyped additionally serializes to a raw byte payload for the binary
// transport. The payload carries no envelope and no type tag; the receiver
// must know the expected type out of band (or embed its own discriminator).
type BinaryTyped interface {
	Typed
	MarshalPayload() ([]byte, error)
}
