// Package meta provides the immutable Meta value tree and its mutable,
// observable counterpart Config.
//
// A Meta is an ordered mapping from name tokens to items. An item is either
// a scalar value (ValueItem) or a nested tree (NodeItem). Indexed children
// share a token body and differ by index, e.g. "point[0]" and "point[1]".
//
// Two Metas are equal when their flattened Name→Value mappings are equal,
// regardless of the order in which children were inserted:
//
//	a := meta.NewBuilder().Put("a", 22).Put("b.c", "ddd").Seal()
//	b := meta.NewBuilder().Put("b.c", "ddd").Put("a", 22.0).Seal()
//	meta.Equal(a, b) // true
//
// Config is built of Config nodes only. Every structural write fires a
// change notification that bubbles to the root with the absolute Name of
// the changed item:
//
//	cfg := meta.ToConfig(a)
//	cfg.OnChange(owner, func(name names.Name, old, new meta.Item) { ... })
//	cfg.Set(names.MustParse("b.c"), meta.Value("eee")) // fires with "b.c"
//	cfg.RemoveListener(owner)
package meta

import (
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// Meta is a read-only tree of named items. Sealed Metas are immutable;
// a *Config is a Meta whose content may change between calls.
type Meta interface {
	// Items returns the direct children in insertion order.
	Items() []Child
}

// Child is a direct child of a Meta node.
type Child struct {
	Token names.Token
	Item  Item
}

// Item is either a ValueItem or a NodeItem.
type Item interface {
	isItem()
}

// ValueItem is a scalar leaf.
type ValueItem struct {
	Value values.Value
}

// NodeItem is a nested tree.
type NodeItem struct {
	Node Meta
}

func (ValueItem) isItem() {}
func (NodeItem) isItem()  {}

// Value wraps a native Go value into a ValueItem.
// It panics for types values.Of does not support.
func Value(v any) Item {
	return ValueItem{Value: values.MustOf(v)}
}

// Node wraps a Meta into a NodeItem.
func Node(m Meta) Item {
	return NodeItem{Node: m}
}

// AsValue returns the value held by item, if it is a ValueItem.
func AsValue(item Item) (values.Value, bool) {
	v, ok := item.(ValueItem)
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// AsNode returns the Meta held by item, if it is a NodeItem.
func AsNode(item Item) (Meta, bool) {
	n, ok := item.(NodeItem)
	if !ok {
		return nil, false
	}
	return n.Node, true
}

// looker is implemented by Metas that can find a child without listing
// every item.
type looker interface {
	lookup(tok names.Token) (Item, bool)
}

func childOf(m Meta, tok names.Token) (Item, bool) {
	if l, ok := m.(looker); ok {
		return l.lookup(tok)
	}
	for _, c := range m.Items() {
		if c.Token == tok {
			return c.Item, true
		}
	}
	return nil, false
}
