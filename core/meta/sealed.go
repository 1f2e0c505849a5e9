package meta

import (
	"bytes"
	"slices"
	"strconv"

	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// sealed is the immutable Meta implementation.
type sealed struct {
	children []Child
	index    map[names.Token]int
}

// Empty is the Meta with no children.
var Empty Meta = &sealed{}

func (s *sealed) Items() []Child {
	return slices.Clone(s.children)
}

func (s *sealed) lookup(tok names.Token) (Item, bool) {
	i, ok := s.index[tok]
	if !ok {
		return nil, false
	}
	return s.children[i].Item, true
}

// Seal returns an immutable deep copy of m. Sealed Metas are returned as is.
func Seal(m Meta) Meta {
	if m == nil {
		return Empty
	}
	if s, ok := m.(*sealed); ok {
		return s
	}
	items := m.Items()
	out := &sealed{
		children: make([]Child, 0, len(items)),
		index:    make(map[names.Token]int, len(items)),
	}
	for _, c := range items {
		var item Item
		switch it := c.Item.(type) {
		case ValueItem:
			item = ValueItem{Value: cloneValue(it.Value)}
		case NodeItem:
			item = NodeItem{Node: Seal(it.Node)}
		default:
			continue
		}
		out.index[c.Token] = len(out.children)
		out.children = append(out.children, Child{Token: c.Token, Item: item})
	}
	return out
}

func cloneValue(v values.Value) values.Value {
	switch x := v.(type) {
	case values.Binary:
		return values.Binary(bytes.Clone(x))
	case values.List:
		out := make(values.List, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	case nil:
		return values.Null{}
	default:
		return v
	}
}

// Builder assembles a sealed Meta.
// Builder methods panic on malformed names or unsupported values; use
// FromMap for untrusted input.
type Builder struct {
	cfg *Config
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{cfg: NewConfig()}
}

// Put stores v at the dotted name. v may be a native value, a values.Value,
// a Meta, an Item or a []Meta (stored as indexed nodes "name[0]", "name[1]"...).
func (b *Builder) Put(name string, v any) *Builder {
	return b.PutName(names.MustParse(name), v)
}

// PutName is like Put with a parsed name.
func (b *Builder) PutName(name names.Name, v any) *Builder {
	// Nodes are sealed first so a live *Config is copied, not re-parented.
	switch x := v.(type) {
	case NodeItem:
		b.cfg.Set(name, NodeItem{Node: Seal(x.Node)})
	case Item:
		b.cfg.Set(name, x)
	case Meta:
		b.cfg.Set(name, NodeItem{Node: Seal(x)})
	case []Meta:
		b.PutIndexed(name, x...)
	default:
		b.cfg.Set(name, Value(v))
	}
	return b
}

// PutIndexed stores nodes under the last token of name with indices 0..n-1.
func (b *Builder) PutIndexed(name names.Name, nodes ...Meta) *Builder {
	last, ok := name.Last()
	if !ok {
		panic("meta: indexed nodes need a non-empty name")
	}
	parent := name.CutLast()
	for i, n := range nodes {
		tok := last.WithIndex(strconv.Itoa(i))
		b.cfg.Set(parent.Append(tok), NodeItem{Node: Seal(n)})
	}
	return b
}

// Seal returns the built Meta. The builder may be reused afterwards.
func (b *Builder) Seal() Meta {
	return Seal(b.cfg)
}
