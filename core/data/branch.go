package data

import (
	"context"
	"reflect"

	"github.com/artpar/dataforge/domain/names"
)

type branchView[T any] struct {
	source Tree[T]
	name   names.Name
}

// Branch returns a live view of the subtree of tree at name. The view
// resolves name on every Items call, so it reflects later changes and is
// empty while name is absent or a leaf. Updates below name are delivered
// relative to it; an update replacing an ancestor of name is delivered as
// the empty name.
func Branch[T any](tree Tree[T], name names.Name) Tree[T] {
	if name.IsEmpty() {
		return tree
	}
	return &branchView[T]{source: tree, name: name}
}

func (b *branchView[T]) DataType() reflect.Type {
	return b.source.DataType()
}

func (b *branchView[T]) Items(ctx context.Context) (Children[T], error) {
	item, err := GetItem(ctx, b.source, b.name)
	if err != nil {
		return Children[T]{}, err
	}
	node, ok := item.(Node[T])
	if !ok {
		return NewChildren[T](), nil
	}
	return node.Tree.Items(ctx)
}

func (b *branchView[T]) OnUpdate(fn func(names.Name)) func() {
	return b.source.OnUpdate(func(changed names.Name) {
		if rest, ok := changed.RemoveHead(b.name); ok {
			fn(rest)
			return
		}
		if b.name.StartsWith(changed) {
			fn(names.Empty)
		}
	})
}
