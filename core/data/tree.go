package data

import (
	"context"
	"fmt"
	"iter"
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/artpar/dataforge/domain/names"
)

// Item is a tree position: either a Leaf or a Node.
type Item[T any] interface {
	isItem()
}

// Leaf holds a single Data.
type Leaf[T any] struct {
	Data *Data[T]
}

// Node holds a nested tree.
type Node[T any] struct {
	Tree Tree[T]
}

func (Leaf[T]) isItem() {}
func (Node[T]) isItem() {}

// Tree is a hierarchical collection of Data.
//
// Items is the only structural primitive; every other operation is
// derived from it. Implementations must return a snapshot that is not
// affected by later mutations.
type Tree[T any] interface {
	// DataType is the declared bound of every Data in the tree.
	DataType() reflect.Type
	// Items returns the direct children in insertion order.
	Items(ctx context.Context) (Children[T], error)
	// OnUpdate subscribes to structural changes. fn receives the name of
	// the changed subtree relative to this tree.
	OnUpdate(fn func(names.Name)) (cancel func())
}

// Children is an ordered snapshot of the direct children of a tree.
type Children[T any] struct {
	m *orderedmap.OrderedMap[names.Token, Item[T]]
}

// NewChildren returns an empty, writable Children.
func NewChildren[T any]() Children[T] {
	return Children[T]{m: orderedmap.New[names.Token, Item[T]]()}
}

// Set adds or replaces a child, keeping its original position on replace.
func (c Children[T]) Set(tok names.Token, item Item[T]) {
	c.m.Set(tok, item)
}

// Len returns the number of children.
func (c Children[T]) Len() int {
	if c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Get returns the child at tok.
func (c Children[T]) Get(tok names.Token) (Item[T], bool) {
	if c.m == nil {
		return nil, false
	}
	return c.m.Get(tok)
}

// All iterates over the children in insertion order.
func (c Children[T]) All() iter.Seq2[names.Token, Item[T]] {
	return func(yield func(names.Token, Item[T]) bool) {
		if c.m == nil {
			return
		}
		for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Tokens lists the child tokens in insertion order.
func (c Children[T]) Tokens() []names.Token {
	out := make([]names.Token, 0, c.Len())
	for tok := range c.All() {
		out = append(out, tok)
	}
	return out
}

// NamedData is a Data together with its absolute name in a tree.
type NamedData[T any] struct {
	Name names.Name
	Data *Data[T]
}

// NamedItem is a tree item together with its absolute name.
type NamedItem[T any] struct {
	Name names.Name
	Item Item[T]
}

// GetItem resolves name against tree. The empty name resolves to the tree
// itself as a Node. A missing position yields a nil Item and no error;
// errors come only from Items.
func GetItem[T any](ctx context.Context, tree Tree[T], name names.Name) (Item[T], error) {
	for {
		if name.IsEmpty() {
			return Node[T]{Tree: tree}, nil
		}
		first, _ := name.First()
		items, err := tree.Items(ctx)
		if err != nil {
			return nil, err
		}
		item, ok := items.Get(first)
		if !ok {
			return nil, nil
		}
		rest := name.CutFirst()
		if rest.IsEmpty() {
			return item, nil
		}
		node, ok := item.(Node[T])
		if !ok {
			return nil, nil
		}
		tree, name = node.Tree, rest
	}
}

// GetData returns the Data at name, or nil if name does not address a leaf.
func GetData[T any](ctx context.Context, tree Tree[T], name names.Name) (*Data[T], error) {
	item, err := GetItem(ctx, tree, name)
	if err != nil {
		return nil, err
	}
	leaf, ok := item.(Leaf[T])
	if !ok {
		return nil, nil
	}
	return leaf.Data, nil
}

// ListChildren returns the names of the direct children of the node at
// prefix, qualified by prefix. It is empty when prefix is absent or a leaf.
func ListChildren[T any](ctx context.Context, tree Tree[T], prefix names.Name) ([]names.Name, error) {
	item, err := GetItem(ctx, tree, prefix)
	if err != nil {
		return nil, err
	}
	node, ok := item.(Node[T])
	if !ok {
		return nil, nil
	}
	items, err := node.Tree.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make([]names.Name, 0, items.Len())
	for tok := range items.All() {
		out = append(out, prefix.Append(tok))
	}
	return out, nil
}
