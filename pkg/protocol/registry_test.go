package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

// colorMessage is the canonical dictionary-capable sample type.
type colorMessage struct {
	R, G, B int64
}

func (colorMessage) TypeKey() string { return "color" }

func (c colorMessage) MarshalGeneric() (Generic, error) {
	return Generic{"r": c.R, "g": c.G, "b": c.B}, nil
}

func decodeColor(g Generic) (Typed, error) {
	var c colorMessage
	var ok bool
	if c.R, ok = g.Int("r"); !ok {
		return nil, fmt.Errorf("missing r")
	}
	if c.G, ok = g.Int("g"); !ok {
		return nil, fmt.Errorf("missing g")
	}
	if c.B, ok = g.Int("b"); !ok {
		return nil, fmt.Errorf("missing b")
	}
	return c, nil
}

// pingMessage carries a counter over the binary channel.
type pingMessage struct {
	Seq uint64
}

func (pingMessage) TypeKey() string { return "ping" }

func (p pingMessage) MarshalGeneric() (Generic, error) {
	return Generic{"seq": p.Seq}, nil
}

func (p pingMessage) MarshalPayload() ([]byte, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], p.Seq)
	return buf[:], nil
}

func decodePingBinary(data []byte) (Typed, error) {
	if len(data) != 8 {
		return nil, fmt.Errorf("bad length %d", len(data))
	}
	return pingMessage{Seq: binary.LittleEndian.Uint64(data)}, nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register("color", decodeColor)

	in := colorMessage{R: 1, G: 0, B: 0}
	p, err := Encode(in, EncodeOptions{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Binary {
		t.Fatalf("dictionary type produced binary payload")
	}
	if p.Dict.String(KeyType) != "color" {
		t.Fatalf("envelope typeKey: %q", p.Dict.String(KeyType))
	}
	out, ok, err := r.Decode(p.Dict)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if out.(colorMessage) != in {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestDecodeAfterWireRoundTrip(t *testing.T) {
	// After crossing a link the nested parameters arrive as a plain map.
	r := NewRegistry()
	r.Register("color", decodeColor)

	raw := Generic{
		KeyType:   "color",
		KeyParams: map[string]any{"r": uint64(1), "g": 0, "b": float64(0)},
	}
	out, ok, err := r.Decode(raw)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if c := out.(colorMessage); c.R != 1 || c.G != 0 || c.B != 0 {
		t.Fatalf("roundtrip mismatch: %#v", c)
	}
}

func TestDecodeUnknownKeyIsUndecodable(t *testing.T) {
	r := NewRegistry()
	raw := Generic{KeyType: "unknown", KeyParams: Generic{"x": 1}}
	msg, ok, err := r.Decode(raw)
	if msg != nil || ok || err != nil {
		t.Fatalf("expected undecodable, got msg=%v ok=%v err=%v", msg, ok, err)
	}
	// A plain dictionary without an envelope is also just not typed.
	msg, ok, err = r.Decode(Generic{"text": "hi"})
	if msg != nil || ok || err != nil {
		t.Fatalf("expected undecodable, got msg=%v ok=%v err=%v", msg, ok, err)
	}
}

func TestDecodeFailureIsError(t *testing.T) {
	r := NewRegistry()
	r.Register("color", decodeColor)
	raw := Generic{KeyType: "color", KeyParams: Generic{"r": 1}}
	_, ok, err := r.Decode(raw)
	if ok || !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected decode failure, got ok=%v err=%v", ok, err)
	}
}

func TestCollisionLastWins(t *testing.T) {
	r := NewRegistry()
	r.Register("color", func(Generic) (Typed, error) { return colorMessage{R: 111}, nil })
	r.Register("color", decodeColor)

	raw := Generic{KeyType: "color", KeyParams: Generic{"r": 7, "g": 8, "b": 9}}
	out, ok, err := r.Decode(raw)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if c := out.(colorMessage); c.R != 7 || c.G != 8 || c.B != 9 {
		t.Fatalf("expected last-registered decoder to win, got %#v", c)
	}
}

func TestBinaryRoundTripAndForceDictionary(t *testing.T) {
	r := NewRegistry()
	r.RegisterBinary("ping", decodePingBinary)

	in := pingMessage{Seq: 42}
	p, err := Encode(in, EncodeOptions{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !p.Binary {
		t.Fatalf("binary-capable type should prefer binary encoding")
	}
	out, ok, err := r.DecodeBinary("ping", p.Data)
	if err != nil || !ok {
		t.Fatalf("decode binary: ok=%v err=%v", ok, err)
	}
	if out.(pingMessage) != in {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}

	// Forcing dictionary suppresses the binary form.
	p, err = Encode(in, EncodeOptions{ForceDictionary: true})
	if err != nil {
		t.Fatalf("encode forced: %v", err)
	}
	if p.Binary || p.Dict.String(KeyType) != "ping" {
		t.Fatalf("forced dictionary not honored: %#v", p)
	}

	// Unknown key on the binary path is undecodable, not an error.
	if _, ok, err := r.DecodeBinary("nope", p.Data); ok || err != nil {
		t.Fatalf("expected undecodable, got ok=%v err=%v", ok, err)
	}
	// A key registered without a binary routine is a decode failure.
	r.Register("dictonly", decodeColor)
	if _, _, err := r.DecodeBinary("dictonly", nil); !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestGenericValidate(t *testing.T) {
	good := Generic{
		"b":    true,
		"n":    int64(5),
		"f":    1.5,
		"s":    "x",
		"blob": []byte{1},
		"sub":  Generic{"k": "v"},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := Generic{"ch": make(chan int)}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestGenericClone(t *testing.T) {
	g := Generic{"blob": []byte("abc"), "sub": Generic{"k": "v"}}
	c := g.Clone()
	c.Bytes("blob")[0] = 'X'
	if string(g.Bytes("blob")) != "abc" {
		t.Fatalf("clone shares blob backing array")
	}
	sub, _ := c.Params("sub")
	sub["k"] = "w"
	if orig, _ := g.Params("sub"); orig["k"] != "v" {
		t.Fatalf("clone shares nested map")
	}
}
