package data

import (
	"context"
	"errors"
	"reflect"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/artpar/dataforge/core/events"
	"github.com/artpar/dataforge/domain/names"
)

// ErrRootData is returned when a Data is emitted at the empty name.
var ErrRootData = errors.New("data: cannot emit data at the root of a tree")

type mutableEntry[T any] struct {
	item   Item[T]
	node   *MutableTree[T]
	detach func()
}

// MutableTree is an in-memory Tree that is also a Builder.
// Changes in nested nodes are reported to the root with absolute names.
type MutableTree[T any] struct {
	typ reflect.Type

	mu       sync.Mutex
	children *orderedmap.OrderedMap[names.Token, *mutableEntry[T]]

	updates events.Listeners[func(names.Name)]
}

// NewMutableTree creates an empty tree with data type T.
func NewMutableTree[T any]() *MutableTree[T] {
	return &MutableTree[T]{
		typ:      reflect.TypeFor[T](),
		children: orderedmap.New[names.Token, *mutableEntry[T]](),
	}
}

// DataType implements Tree and Builder.
func (t *MutableTree[T]) DataType() reflect.Type {
	return t.typ
}

// Items implements Tree.
func (t *MutableTree[T]) Items(ctx context.Context) (Children[T], error) {
	if err := ctx.Err(); err != nil {
		return Children[T]{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := NewChildren[T]()
	for pair := t.children.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value.item)
	}
	return out, nil
}

// OnUpdate implements Tree.
func (t *MutableTree[T]) OnUpdate(fn func(names.Name)) func() {
	return t.updates.Subscribe(fn)
}

func (t *MutableTree[T]) fire(name names.Name) {
	for _, fn := range t.updates.Snapshot() {
		fn(name)
	}
}

// Emit implements Builder. A nil d removes the item at name.
func (t *MutableTree[T]) Emit(ctx context.Context, name names.Name, d *Data[T]) error {
	if d == nil {
		return t.Remove(ctx, name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	first, ok := name.First()
	if !ok {
		return ErrRootData
	}
	rest := name.CutFirst()
	if rest.IsEmpty() {
		t.put(first, &mutableEntry[T]{item: Leaf[T]{Data: d}})
		return nil
	}
	return t.nodeForWrite(first).Emit(ctx, rest, d)
}

// nodeForWrite returns the child tree at tok, creating it or replacing a
// leaf as needed.
func (t *MutableTree[T]) nodeForWrite(tok names.Token) *MutableTree[T] {
	t.mu.Lock()
	if e, ok := t.children.Get(tok); ok && e.node != nil {
		t.mu.Unlock()
		return e.node
	}
	t.mu.Unlock()

	child := &MutableTree[T]{
		typ:      t.typ,
		children: orderedmap.New[names.Token, *mutableEntry[T]](),
	}
	if winner := t.put(tok, &mutableEntry[T]{item: Node[T]{Tree: child}, node: child}); winner != nil {
		return winner
	}
	return child
}

// put stores entry at tok and fires the change. When entry is a node and
// another node was installed at tok concurrently, nothing is stored and
// the existing node is returned.
func (t *MutableTree[T]) put(tok names.Token, entry *mutableEntry[T]) *MutableTree[T] {
	if entry.node != nil {
		entry.detach = entry.node.OnUpdate(func(name names.Name) {
			t.fire(tok.AsName().Plus(name))
		})
	}

	t.mu.Lock()
	if entry.node != nil {
		if e, ok := t.children.Get(tok); ok && e.node != nil {
			t.mu.Unlock()
			entry.detach()
			return e.node
		}
	}
	old, _ := t.children.Set(tok, entry)
	t.mu.Unlock()

	if old != nil && old.detach != nil {
		old.detach()
	}
	t.fire(tok.AsName())
	return nil
}

// Remove implements Builder. Removing the empty name clears the tree.
func (t *MutableTree[T]) Remove(ctx context.Context, name names.Name) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	first, ok := name.First()
	if !ok {
		t.clear()
		return nil
	}
	rest := name.CutFirst()

	t.mu.Lock()
	e, exists := t.children.Get(first)
	if !exists {
		t.mu.Unlock()
		return nil
	}
	if !rest.IsEmpty() {
		t.mu.Unlock()
		if e.node == nil {
			return nil
		}
		return e.node.Remove(ctx, rest)
	}
	t.children.Delete(first)
	t.mu.Unlock()

	if e.detach != nil {
		e.detach()
	}
	t.fire(first.AsName())
	return nil
}

func (t *MutableTree[T]) clear() {
	t.mu.Lock()
	old := t.children
	t.children = orderedmap.New[names.Token, *mutableEntry[T]]()
	t.mu.Unlock()

	if old.Len() == 0 {
		return
	}
	for pair := old.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.detach != nil {
			pair.Value.detach()
		}
	}
	t.fire(names.Empty)
}
