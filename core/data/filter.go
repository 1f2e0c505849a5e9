package data

import (
	"context"
	"reflect"

	"github.com/artpar/dataforge/domain/names"
)

type typeFilter[R, T any] struct {
	source Tree[T]
}

// FilterByType returns a view of tree holding only the leaves whose
// declared type is assignable to R. Nodes are kept, filtered recursively,
// even when they end up empty.
func FilterByType[R, T any](tree Tree[T]) Tree[R] {
	if same, ok := any(tree).(Tree[R]); ok {
		return same
	}
	return &typeFilter[R, T]{source: tree}
}

func (f *typeFilter[R, T]) DataType() reflect.Type {
	return reflect.TypeFor[R]()
}

func (f *typeFilter[R, T]) Items(ctx context.Context) (Children[R], error) {
	items, err := f.source.Items(ctx)
	if err != nil {
		return Children[R]{}, err
	}
	out := NewChildren[R]()
	for tok, item := range items.All() {
		switch it := item.(type) {
		case Leaf[T]:
			if cast, ok := Cast[R](it.Data); ok {
				out.Set(tok, Leaf[R]{Data: cast})
			}
		case Node[T]:
			out.Set(tok, Node[R]{Tree: FilterByType[R](it.Tree)})
		}
	}
	return out, nil
}

func (f *typeFilter[R, T]) OnUpdate(fn func(names.Name)) func() {
	return f.source.OnUpdate(fn)
}
