// Package envelope bridges binary envelopes and lazy Data.
package envelope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
)

// ErrNoData is returned when awaiting Data built from an envelope without
// a payload.
var ErrNoData = errors.New("envelope: no data")

// Envelope is a Meta plus an optional binary payload. A nil Data means
// the envelope carries no payload.
type Envelope struct {
	Meta meta.Meta
	Data []byte
}

// IOFormat converts between T and its binary form.
type IOFormat[T any] interface {
	Name() string
	Read(b []byte) (T, error)
	Write(v T) ([]byte, error)
}

// ToData returns a lazy Data that decodes the payload on first Await.
func ToData[T any](env Envelope, format IOFormat[T]) *data.Data[T] {
	payload := env.Data
	return data.New(env.Meta, func(ctx context.Context) (T, error) {
		if payload == nil {
			var zero T
			return zero, ErrNoData
		}
		v, err := format.Read(payload)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("read %s: %w", format.Name(), err)
		}
		return v, nil
	})
}

// ToEnvelope awaits d and encodes its value.
func ToEnvelope[T any](ctx context.Context, d *data.Data[T], format IOFormat[T]) (Envelope, error) {
	v, err := d.Await(ctx)
	if err != nil {
		return Envelope{}, err
	}
	b, err := format.Write(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("write %s: %w", format.Name(), err)
	}
	return Envelope{Meta: d.Meta(), Data: b}, nil
}

type jsonFormat[T any] struct{}

// JSONFormat encodes T with encoding/json.
func JSONFormat[T any]() IOFormat[T] { return jsonFormat[T]{} }

func (jsonFormat[T]) Name() string { return "json" }

func (jsonFormat[T]) Read(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

func (jsonFormat[T]) Write(v T) ([]byte, error) {
	return json.Marshal(v)
}

type cborFormat[T any] struct{}

// CBORFormat encodes T as CBOR.
func CBORFormat[T any]() IOFormat[T] { return cborFormat[T]{} }

func (cborFormat[T]) Name() string { return "cbor" }

func (cborFormat[T]) Read(b []byte) (T, error) {
	var v T
	err := codec.NewDecoderBytes(b, metacodec.CBORHandle()).Decode(&v)
	return v, err
}

func (cborFormat[T]) Write(v T) ([]byte, error) {
	var out []byte
	err := codec.NewEncoderBytes(&out, metacodec.CBORHandle()).Encode(v)
	return out, err
}

type metaFormat struct {
	codec metacodec.Codec
}

// MetaFormat stores a Meta payload with the given codec.
func MetaFormat(c metacodec.Codec) IOFormat[meta.Meta] {
	return metaFormat{codec: c}
}

func (f metaFormat) Name() string { return "meta/" + f.codec.Name() }

func (f metaFormat) Read(b []byte) (meta.Meta, error) {
	return f.codec.Decode(bytes.NewReader(b))
}

func (f metaFormat) Write(m meta.Meta) ([]byte, error) {
	return metacodec.Marshal(f.codec, m)
}
