package metacodec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/ugorji/go/codec"

	"github.com/artpar/dataforge/core/meta"
)

type cborCodec struct{}

func (cborCodec) Name() string         { return "cbor" }
func (cborCodec) Extensions() []string { return []string{"cbor"} }

// CBORHandle returns the handle used for Meta payloads: canonical map
// ordering, maps decoded as map[string]any and integers as int64.
func CBORHandle() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.Canonical = true
	h.MapType = reflect.TypeOf(map[string]any(nil))
	h.SignedInteger = true
	return h
}

// Encode writes m as a canonical CBOR map. Child order is not kept.
func (cborCodec) Encode(w io.Writer, m meta.Meta) error {
	enc := codec.NewEncoder(w, CBORHandle())
	if err := enc.Encode(meta.ToMap(m)); err != nil {
		return fmt.Errorf("encode cbor: %w", err)
	}
	return nil
}

// Decode reads a CBOR map.
func (cborCodec) Decode(r io.Reader) (meta.Meta, error) {
	var raw map[string]any
	dec := codec.NewDecoder(r, CBORHandle())
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode cbor: %w", err)
	}
	m, err := meta.FromMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode cbor: %w", err)
	}
	return m, nil
}
