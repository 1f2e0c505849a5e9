// Package filetree serves a directory as a lazy data tree.
package filetree

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/domain/names"
)

// FormatRaw marks items holding the file bytes.
const FormatRaw = "raw"

// NameOf maps a slash separated relative path to an item name. The last
// extension is dropped; every path segment becomes one token.
func NameOf(rel string) names.Name {
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	parts := strings.Split(filepath.ToSlash(rel), "/")
	tokens := make([]names.Token, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, names.NewToken(p))
		}
	}
	return names.Of(tokens...)
}

// Load walks dir and emits one lazy item per regular file. Files with a
// meta codec extension (json, yaml, yml, cbor) read as meta.Meta; any
// other file reads as []byte. Nothing is read before the item is awaited.
// Hidden files and directories are skipped.
func Load(ctx context.Context, dir string, logger zerolog.Logger) (*data.MutableTree[any], error) {
	return data.Build(ctx, func(ctx context.Context, b data.Builder[any]) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}

			name := NameOf(rel)
			format := FormatRaw
			codec, codecErr := metacodec.ForPath(path)
			if codecErr == nil {
				format = codec.Name()
			}
			m := meta.NewBuilder().
				Put("file", filepath.ToSlash(rel)).
				Put("size", info.Size()).
				Put("format", format).
				Seal()

			logger.Debug().Stringer("name", name).Str("format", format).Msg("data file found")
			return data.Produce(ctx, b, name, m, producer(path, codec))
		})
	})
}

func producer(path string, codec metacodec.Codec) data.Producer[any] {
	return func(ctx context.Context) (any, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if codec == nil {
			return raw, nil
		}
		m, err := codec.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		return m, nil
	}
}
