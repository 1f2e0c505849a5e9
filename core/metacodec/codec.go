// Package metacodec reads and writes Meta trees as JSON, YAML and CBOR.
//
// All formats share one layout: a node is a mapping; a group of indexed
// children with the same body is a sequence of mappings, each carrying its
// index under "@index" (and a scalar member under "@value"); a list value
// is a sequence of scalars. JSON and YAML keep child order, CBOR writes
// canonical (sorted) maps. Every codec round-trips Meta equality.
package metacodec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/artpar/dataforge/core/meta"
)

// BinaryKey wraps binary values in JSON, which has no byte string type.
const BinaryKey = "@binary"

// ErrUnknownFormat is returned for an unregistered codec name or extension.
var ErrUnknownFormat = errors.New("metacodec: unknown format")

// Codec encodes and decodes Meta trees.
type Codec interface {
	Name() string
	Extensions() []string
	Encode(w io.Writer, m meta.Meta) error
	Decode(r io.Reader) (meta.Meta, error)
}

// Codecs known to ByName and ForPath.
var (
	JSON Codec = jsonCodec{}
	YAML Codec = yamlCodec{}
	CBOR Codec = cborCodec{}
)

var all = []Codec{JSON, YAML, CBOR}

// ByName returns the codec with the given name ("json", "yaml", "cbor").
func ByName(name string) (Codec, error) {
	name = strings.ToLower(name)
	for _, c := range all {
		if c.Name() == name {
			return c, nil
		}
		for _, ext := range c.Extensions() {
			if ext == name {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// ForPath picks a codec by file extension.
func ForPath(path string) (Codec, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return nil, fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ByName(ext)
}

// Marshal encodes m into a byte slice.
func Marshal(c Codec, m meta.Meta) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a Meta from b.
func Unmarshal(c Codec, b []byte) (meta.Meta, error) {
	return c.Decode(bytes.NewReader(b))
}
