package meta

import (
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// IndexKey is the map key that carries a token index in ToMap output.
const IndexKey = "@index"

// ValueKey holds a scalar member of an indexed group in ToMap output.
const ValueKey = "@value"

// Get walks name one token at a time and returns the item, or nil when any
// intermediate node is missing. The empty name returns m itself as a node.
func Get(m Meta, name names.Name) Item {
	if m == nil {
		return nil
	}
	if name.IsEmpty() {
		return NodeItem{Node: m}
	}
	for i := 0; i < name.Len(); i++ {
		item, ok := childOf(m, name.At(i))
		if !ok {
			return nil
		}
		if i == name.Len()-1 {
			return item
		}
		node, ok := item.(NodeItem)
		if !ok {
			return nil
		}
		m = node.Node
	}
	return nil
}

// GetValue returns the value at name, if the item there is a ValueItem.
func GetValue(m Meta, name names.Name) (values.Value, bool) {
	return AsValue(Get(m, name))
}

// GetNode returns the node at name, if the item there is a NodeItem.
func GetNode(m Meta, name names.Name) (Meta, bool) {
	return AsNode(Get(m, name))
}

// IndexedItem is one member of a same-body group of children.
type IndexedItem struct {
	Index string
	Item  Item
}

// GetIndexed returns the children of the node at name.CutLast() whose body
// equals the body of name's last token, in insertion order. A non-indexed
// child of that body is reported with an empty Index.
func GetIndexed(m Meta, name names.Name) []IndexedItem {
	last, ok := name.Last()
	if !ok {
		return nil
	}
	parent, ok := GetNode(m, name.CutLast())
	if !ok {
		return nil
	}
	var out []IndexedItem
	for _, c := range parent.Items() {
		if c.Token.Body == last.Body {
			out = append(out, IndexedItem{Index: c.Token.Index, Item: c.Item})
		}
	}
	return out
}

// Entry is one leaf of a flattened Meta.
type Entry struct {
	Name  names.Name
	Value values.Value
}

// Flatten lists every value of m with its absolute name, in depth-first
// pre-order following insertion order.
func Flatten(m Meta) []Entry {
	var out []Entry
	flattenInto(&out, names.Empty, m)
	return out
}

func flattenInto(out *[]Entry, prefix names.Name, m Meta) {
	if m == nil {
		return
	}
	for _, c := range m.Items() {
		name := prefix.Append(c.Token)
		switch it := c.Item.(type) {
		case ValueItem:
			*out = append(*out, Entry{Name: name, Value: it.Value})
		case NodeItem:
			flattenInto(out, name, it.Node)
		}
	}
}

// Equal reports whether a and b have equal flattened Name→Value mappings.
func Equal(a, b Meta) bool {
	fa, fb := Flatten(a), Flatten(b)
	if len(fa) != len(fb) {
		return false
	}
	index := make(map[string]values.Value, len(fa))
	for _, e := range fa {
		index[e.Name.String()] = e.Value
	}
	for _, e := range fb {
		v, ok := index[e.Name.String()]
		if !ok || !values.Equal(v, e.Value) {
			return false
		}
	}
	return true
}

// Hash returns an insertion-order independent hash; Equal Metas hash equal.
func Hash(m Meta) uint64 {
	entries := Flatten(m)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Name.String() + "=" + values.Key(e.Value)
	}
	sort.Strings(lines)

	h := fnv.New64a()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// ToMap converts m into nested plain Go maps. Groups of indexed children
// become []any of maps carrying IndexKey.
func ToMap(m Meta) map[string]any {
	out := make(map[string]any)
	for _, g := range groups(m) {
		if len(g.members) == 1 && !g.members[0].Token.HasIndex() {
			out[g.body] = itemToNative(g.members[0].Item)
			continue
		}
		list := make([]any, len(g.members))
		for i, c := range g.members {
			var entry map[string]any
			switch it := c.Item.(type) {
			case NodeItem:
				entry = ToMap(it.Node)
			case ValueItem:
				entry = map[string]any{ValueKey: values.Native(it.Value)}
			}
			entry[IndexKey] = c.Token.Index
			list[i] = entry
		}
		out[g.body] = list
	}
	return out
}

func itemToNative(item Item) any {
	switch it := item.(type) {
	case ValueItem:
		return values.Native(it.Value)
	case NodeItem:
		return ToMap(it.Node)
	default:
		return nil
	}
}

type group struct {
	body    string
	members []Child
}

// groups collects children by token body, keeping first-seen order.
func groups(m Meta) []group {
	var out []group
	pos := make(map[string]int)
	for _, c := range m.Items() {
		i, ok := pos[c.Token.Body]
		if !ok {
			i = len(out)
			pos[c.Token.Body] = i
			out = append(out, group{body: c.Token.Body})
		}
		out[i].members = append(out[i].members, c)
	}
	return out
}

// FromMap builds a sealed Meta from nested maps as produced by ToMap or a
// generic decoder. Map keys are taken as literal token bodies and are
// processed in sorted order.
func FromMap(src map[string]any) (Meta, error) {
	cfg := NewConfig()
	if err := fillFromMap(cfg, src); err != nil {
		return nil, err
	}
	return Seal(cfg), nil
}

func fillFromMap(cfg *Config, src map[string]any) error {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := putNative(cfg, names.NewToken(key), src[key]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func putNative(cfg *Config, tok names.Token, v any) error {
	switch x := v.(type) {
	case map[string]any:
		child := NewConfig()
		if err := fillFromMap(child, x); err != nil {
			return err
		}
		cfg.putQuiet(tok, NodeItem{Node: child})
		return nil
	case []any:
		if isIndexedGroup(x) {
			for i, el := range x {
				entry := maps(el)
				index := strconv.Itoa(i)
				if raw, ok := entry[IndexKey]; ok {
					index = fmt.Sprint(raw)
				}
				member := tok.WithIndex(index)
				if raw, ok := entry[ValueKey]; ok {
					val, err := values.Of(raw)
					if err != nil {
						return err
					}
					cfg.putQuiet(member, ValueItem{Value: val})
					continue
				}
				rest := make(map[string]any, len(entry))
				for k, v := range entry {
					if k != IndexKey {
						rest[k] = v
					}
				}
				if err := putNative(cfg, member, rest); err != nil {
					return err
				}
			}
			return nil
		}
	}
	val, err := values.Of(v)
	if err != nil {
		return err
	}
	cfg.putQuiet(tok, ValueItem{Value: val})
	return nil
}

func maps(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// isIndexedGroup reports whether a decoded list holds nodes rather than values.
func isIndexedGroup(list []any) bool {
	if len(list) == 0 {
		return false
	}
	for _, el := range list {
		if _, ok := el.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// String renders m as "name=value" lines in flattened order.
func String(m Meta) string {
	entries := Flatten(m)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Name.String() + "=" + e.Value.String()
	}
	return strings.Join(lines, "\n")
}

// Names lists the absolute names of every value in m.
func Names(m Meta) []names.Name {
	entries := Flatten(m)
	out := make([]names.Name, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return slices.Clip(out)
}
