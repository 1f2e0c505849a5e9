package meta

import (
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// Sync makes c equal to m while touching only what differs, so listeners
// see one change per modified, added or removed item. Nodes present on
// both sides are synced in place and keep their identity.
func Sync(c *Config, m Meta) {
	if m == nil {
		m = Empty
	}
	want := make(map[names.Token]struct{})
	for _, child := range m.Items() {
		want[child.Token] = struct{}{}
		current, _ := c.lookup(child.Token)

		switch it := child.Item.(type) {
		case ValueItem:
			if cur, ok := AsValue(current); ok && sameValue(cur, it.Value) {
				continue
			}
			c.replace(child.Token, ValueItem{Value: cloneValue(it.Value)})
		case NodeItem:
			if cur, ok := AsNode(current); ok {
				if curCfg, ok := cur.(*Config); ok {
					Sync(curCfg, it.Node)
					continue
				}
			}
			c.replace(child.Token, NodeItem{Node: ToConfig(it.Node)})
		}
	}
	for _, child := range c.Items() {
		if _, ok := want[child.Token]; !ok {
			c.replace(child.Token, nil)
		}
	}
}

// sameValue is stricter than values.Equal: 22 and 22.0 are equal Metas,
// but a reload that changes the representation is still reported.
func sameValue(a, b values.Value) bool {
	return a.Type() == b.Type() && values.Key(a) == values.Key(b) && a.String() == b.String()
}
