package data

import (
	"context"
	"fmt"
	"iter"
	"reflect"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
)

// Builder is the mutation side of a tree.
type Builder[T any] interface {
	DataType() reflect.Type
	// Remove deletes every item at or below name.
	Remove(ctx context.Context, name names.Name) error
	// Emit puts d at name; a nil d removes the item.
	Emit(ctx context.Context, name names.Name, d *Data[T]) error
}

// EmitSet replaces the subtree at name with the current content of set.
// Existing items under name are removed first (unless name is empty), then
// every leaf of set is emitted under name. Leaves emitted twice keep the
// last one. The replacement is not atomic for concurrent readers, and
// later changes of set are not propagated.
func EmitSet[T any](ctx context.Context, b Builder[T], name names.Name, set Tree[T]) error {
	if !name.IsEmpty() {
		if err := b.Remove(ctx, name); err != nil {
			return err
		}
	}
	for nd, err := range Flow(ctx, set) {
		if err != nil {
			return fmt.Errorf("emit %s: %w", name, err)
		}
		if err := b.Emit(ctx, name.Plus(nd.Name), nd.Data); err != nil {
			return err
		}
	}
	return nil
}

type subBuilder[T any] struct {
	parent Builder[T]
	branch names.Name
}

func (s *subBuilder[T]) DataType() reflect.Type {
	return s.parent.DataType()
}

func (s *subBuilder[T]) Remove(ctx context.Context, name names.Name) error {
	return s.parent.Remove(ctx, s.branch.Plus(name))
}

func (s *subBuilder[T]) Emit(ctx context.Context, name names.Name, d *Data[T]) error {
	return s.parent.Emit(ctx, s.branch.Plus(name), d)
}

// Sub returns a builder that prefixes every name with branch before
// forwarding to b.
func Sub[T any](b Builder[T], branch names.Name) Builder[T] {
	if branch.IsEmpty() {
		return b
	}
	if s, ok := b.(*subBuilder[T]); ok {
		return &subBuilder[T]{parent: s.parent, branch: s.branch.Plus(branch)}
	}
	return &subBuilder[T]{parent: b, branch: branch}
}

// EmitBranch runs block against a builder scoped to name.
func EmitBranch[T any](ctx context.Context, b Builder[T], name names.Name, block func(ctx context.Context, b Builder[T]) error) error {
	return block(ctx, Sub(b, name))
}

// Populate emits every element of seq under its own name, stopping at the
// first error.
func Populate[T any](ctx context.Context, b Builder[T], seq iter.Seq2[NamedData[T], error]) error {
	for nd, err := range seq {
		if err != nil {
			return err
		}
		if err := b.Emit(ctx, nd.Name, nd.Data); err != nil {
			return err
		}
	}
	return nil
}

// Produce emits a lazy Data computed by producer.
func Produce[T any](ctx context.Context, b Builder[T], name names.Name, m meta.Meta, producer Producer[T]) error {
	return b.Emit(ctx, name, New(m, producer))
}

// EmitStatic emits an already computed value.
func EmitStatic[T any](ctx context.Context, b Builder[T], name names.Name, v T, m meta.Meta) error {
	return b.Emit(ctx, name, Static(v, m))
}

// Build creates a MutableTree and fills it with block.
func Build[T any](ctx context.Context, block func(ctx context.Context, b Builder[T]) error) (*MutableTree[T], error) {
	tree := NewMutableTree[T]()
	if err := block(ctx, tree); err != nil {
		return nil, err
	}
	return tree, nil
}
