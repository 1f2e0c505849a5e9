// Package descriptors describes the allowed structure of a Meta tree:
// which values and nodes may appear, their types, defaults and allowed
// values. Descriptors are stored in a Config, so they can be serialized
// and merged like any other Meta.
//
//	d := descriptors.New(func(d *descriptors.NodeDescriptor) {
//		d.Node("aNode", func(n *descriptors.NodeDescriptor) {
//			n.Value("b", func(v *descriptors.ValueDescriptor) {
//				v.SetType(values.TypeNumber)
//			})
//		})
//	})
//	defaults := descriptors.DefaultMeta(d)
//	result := descriptors.Validate(d, m)
package descriptors

import (
	"fmt"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// Keys used inside descriptor configs.
const (
	itemKey          = "item"
	isNodeKey        = "@isNode"
	infoKey          = "info"
	requiredKey      = "required"
	defaultKey       = "default"
	typeKey          = "type"
	allowedValuesKey = "allowedValues"
	constraintKey    = "constraint"
)

// ItemDescriptor is either a *NodeDescriptor or a *ValueDescriptor.
type ItemDescriptor interface {
	Info() string
	Required() bool
	// Meta returns a sealed copy of the descriptor content.
	Meta() meta.Meta
	config() *meta.Config
}

// Entry is a named child descriptor.
type Entry struct {
	Key  string
	Item ItemDescriptor
}

type base struct {
	cfg *meta.Config
}

func (b base) config() *meta.Config { return b.cfg }

// Meta returns a sealed copy of the descriptor.
func (b base) Meta() meta.Meta { return meta.Seal(b.cfg) }

// Info returns the free-text description.
func (b base) Info() string {
	s, _ := meta.GetString(b.cfg, names.FromBodies(infoKey), "")
	return s
}

// SetInfo sets the free-text description.
func (b base) SetInfo(info string) {
	b.cfg.Set(names.FromBodies(infoKey), meta.Value(info))
}

// Required reports whether the item must be present. It defaults to false.
func (b base) Required() bool {
	r, _ := meta.GetBool(b.cfg, names.FromBodies(requiredKey), false)
	return r
}

// SetRequired marks the item as required.
func (b base) SetRequired(required bool) {
	b.cfg.Set(names.FromBodies(requiredKey), meta.Value(required))
}

// NodeDescriptor describes a node and its children.
type NodeDescriptor struct {
	base
}

// New builds a root node descriptor.
func New(fn func(d *NodeDescriptor)) *NodeDescriptor {
	d := newNode(meta.NewConfig())
	if fn != nil {
		fn(d)
	}
	return d
}

// FromMeta wraps a copy of m, e.g. a decoded descriptor file.
func FromMeta(m meta.Meta) *NodeDescriptor {
	return newNode(meta.ToConfig(m))
}

func newNode(cfg *meta.Config) *NodeDescriptor {
	cfg.Set(names.FromBodies(isNodeKey), meta.Value(true))
	return &NodeDescriptor{base{cfg: cfg}}
}

// Default returns the default content of the node, or nil.
func (d *NodeDescriptor) Default() meta.Meta {
	m, ok := meta.GetNode(d.cfg, names.FromBodies(defaultKey))
	if !ok {
		return nil
	}
	return meta.Seal(m)
}

// SetDefault sets the default content of the node.
func (d *NodeDescriptor) SetDefault(m meta.Meta) {
	d.cfg.Set(names.FromBodies(defaultKey), meta.Node(meta.Seal(m)))
}

func itemToken(key string) names.Token {
	return names.NewToken(itemKey).WithIndex(key)
}

// Items lists the child descriptors in declaration order.
func (d *NodeDescriptor) Items() []Entry {
	var out []Entry
	for _, it := range meta.GetIndexed(d.cfg, names.FromBodies(itemKey)) {
		node, ok := meta.AsNode(it.Item)
		if !ok {
			continue
		}
		cfg, ok := node.(*meta.Config)
		if !ok {
			continue
		}
		out = append(out, Entry{Key: it.Index, Item: wrap(cfg)})
	}
	return out
}

func wrap(cfg *meta.Config) ItemDescriptor {
	if isNode, _ := meta.GetBool(cfg, names.FromBodies(isNodeKey), false); isNode {
		return &NodeDescriptor{base{cfg: cfg}}
	}
	return &ValueDescriptor{base{cfg: cfg}}
}

// Nodes returns the child node descriptors by key.
func (d *NodeDescriptor) Nodes() map[string]*NodeDescriptor {
	out := make(map[string]*NodeDescriptor)
	for _, e := range d.Items() {
		if n, ok := e.Item.(*NodeDescriptor); ok {
			out[e.Key] = n
		}
	}
	return out
}

// Values returns the child value descriptors by key.
func (d *NodeDescriptor) Values() map[string]*ValueDescriptor {
	out := make(map[string]*ValueDescriptor)
	for _, e := range d.Items() {
		if v, ok := e.Item.(*ValueDescriptor); ok {
			out[e.Key] = v
		}
	}
	return out
}

// Get returns the descriptor at a dotted name, or nil.
func (d *NodeDescriptor) Get(name names.Name) ItemDescriptor {
	if name.IsEmpty() {
		return d
	}
	var current ItemDescriptor = d
	for _, tok := range name.Tokens() {
		node, ok := current.(*NodeDescriptor)
		if !ok {
			return nil
		}
		child := node.cfg.Node(itemToken(tok.String()).AsName())
		if child == nil {
			return nil
		}
		current = wrap(child)
	}
	return current
}

// nodeAt returns the node descriptor at name, creating intermediate nodes.
// It panics if a value descriptor is in the way.
func (d *NodeDescriptor) nodeAt(name names.Name) *NodeDescriptor {
	current := d
	for _, tok := range name.Tokens() {
		key := itemToken(tok.String()).AsName()
		child := current.cfg.Node(key)
		if child == nil {
			created := newNode(meta.NewConfig())
			current.cfg.Set(key, meta.Node(created.cfg))
			current = created
			continue
		}
		node, ok := wrap(child).(*NodeDescriptor)
		if !ok {
			panic(fmt.Sprintf("descriptors: %s is a value, not a node", tok))
		}
		current = node
	}
	return current
}

func (d *NodeDescriptor) add(name names.Name, item ItemDescriptor) {
	last, ok := name.Last()
	if !ok {
		panic("descriptors: item name must not be empty")
	}
	parent := d.nodeAt(name.CutLast())
	tok := itemToken(last.String())
	if parent.cfg.Get(tok.AsName()) != nil {
		panic(fmt.Sprintf("descriptors: the key %s already exists", last))
	}
	parent.cfg.Set(tok.AsName(), meta.Node(item.config()))
}

// Node declares a child node descriptor at a dotted name and configures it
// with fn. It panics for an empty or duplicate name.
func (d *NodeDescriptor) Node(name string, fn func(n *NodeDescriptor)) *NodeDescriptor {
	child := newNode(meta.NewConfig())
	if fn != nil {
		fn(child)
	}
	d.add(names.MustParse(name), child)
	return d
}

// Value declares a child value descriptor at a dotted name and configures
// it with fn. It panics for an empty or duplicate name.
func (d *NodeDescriptor) Value(name string, fn func(v *ValueDescriptor)) *NodeDescriptor {
	child := &ValueDescriptor{base{cfg: meta.NewConfig()}}
	if fn != nil {
		fn(child)
	}
	d.add(names.MustParse(name), child)
	return d
}

// ValueDescriptor describes a single value.
type ValueDescriptor struct {
	base
}

// Default returns the default value, or nil.
func (v *ValueDescriptor) Default() values.Value {
	val, ok := meta.GetValue(v.cfg, names.FromBodies(defaultKey))
	if !ok {
		return nil
	}
	return val
}

// SetDefault sets the default value. It panics for unsupported types.
func (v *ValueDescriptor) SetDefault(def any) {
	v.cfg.Set(names.FromBodies(defaultKey), meta.Value(def))
}

// Types returns the allowed value types; empty means any type.
func (v *ValueDescriptor) Types() []values.Type {
	list, _ := meta.GetStringList(v.cfg, names.FromBodies(typeKey), nil)
	out := make([]values.Type, 0, len(list))
	for _, s := range list {
		if t, err := values.ParseType(s); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// SetType restricts the allowed value types.
func (v *ValueDescriptor) SetType(types ...values.Type) {
	list := make([]string, len(types))
	for i, t := range types {
		list[i] = string(t)
	}
	v.cfg.Set(names.FromBodies(typeKey), meta.Value(list))
}

// AllowedValues returns the allowed values; empty means unrestricted.
func (v *ValueDescriptor) AllowedValues() []values.Value {
	val, ok := meta.GetValue(v.cfg, names.FromBodies(allowedValuesKey))
	if !ok {
		return []values.Value{}
	}
	if list, ok := val.(values.List); ok {
		return list
	}
	return []values.Value{val}
}

// SetAllowedValues restricts the value to one of allowed.
func (v *ValueDescriptor) SetAllowedValues(allowed ...any) {
	list := make(values.List, len(allowed))
	for i, a := range allowed {
		list[i] = values.MustOf(a)
	}
	v.cfg.Set(names.FromBodies(allowedValuesKey), meta.ValueItem{Value: list})
}

// Constraint returns the boolean expression the value must satisfy.
func (v *ValueDescriptor) Constraint() string {
	s, _ := meta.GetString(v.cfg, names.FromBodies(constraintKey), "")
	return s
}

// SetConstraint sets a boolean expression over `value`, e.g.
// "value > 0 && value < 10".
func (v *ValueDescriptor) SetConstraint(expression string) {
	v.cfg.Set(names.FromBodies(constraintKey), meta.Value(expression))
}

// Plus merges two descriptors; a wins on conflicting keys.
func Plus(a, b *NodeDescriptor) *NodeDescriptor {
	cfg := meta.NewConfig()
	cfg.Update(b.cfg)
	cfg.Update(a.cfg)
	return newNode(cfg)
}
