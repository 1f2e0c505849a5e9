package meta

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/artpar/dataforge/core/events"
	"github.com/artpar/dataforge/domain/names"
)

// Listener is called after an item changed. name is relative to the Config
// the listener was registered on; newItem is nil for removals.
type Listener func(name names.Name, oldItem, newItem Item)

// slot is one child of a Config. Node slots keep the child Config and the
// handle that unhooks its forwarding to this Config.
type slot struct {
	item   Item
	child  *Config
	detach func()
}

// parentLink forwards a child's changes to its owning Config.
type parentLink struct {
	parent *Config
	key    names.Token
}

// Config is the mutable, observable Meta. Node children are Configs owned
// by exactly one parent; every change anywhere in the subtree is reported
// to the root's listeners with the absolute name of the changed item.
//
// Config is safe for concurrent use. Listeners are invoked synchronously,
// without any Config lock held, so a listener may mutate the tree.
type Config struct {
	mu        sync.Mutex
	children  *orderedmap.OrderedMap[names.Token, *slot]
	link      *parentLink
	listeners events.Listeners[Listener]
}

// NewConfig creates an empty Config.
func NewConfig() *Config {
	return &Config{
		children: orderedmap.New[names.Token, *slot](),
	}
}

// ToConfig creates a deep, listener-free copy of m.
// A *Config argument is copied as well.
func ToConfig(m Meta) *Config {
	cfg := NewConfig()
	if m == nil {
		return cfg
	}
	for _, c := range m.Items() {
		switch it := c.Item.(type) {
		case ValueItem:
			cfg.putQuiet(c.Token, ValueItem{Value: cloneValue(it.Value)})
		case NodeItem:
			cfg.putQuiet(c.Token, NodeItem{Node: ToConfig(it.Node)})
		}
	}
	return cfg
}

// AsConfig returns m if it is a *Config and a copy otherwise.
func AsConfig(m Meta) *Config {
	if c, ok := m.(*Config); ok {
		return c
	}
	return ToConfig(m)
}

// Copy returns a deep copy without listeners.
func (c *Config) Copy() *Config {
	return ToConfig(c)
}

// Items returns a snapshot of the direct children. Node items hold the
// live child *Config.
func (c *Config) Items() []Child {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Child, 0, c.children.Len())
	for pair := c.children.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Child{Token: pair.Key, Item: pair.Value.item})
	}
	return out
}

func (c *Config) lookup(tok names.Token) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.children.Get(tok)
	if !ok {
		return nil, false
	}
	return s.item, true
}

// Get returns the item at name or nil.
func (c *Config) Get(name names.Name) Item {
	return Get(c, name)
}

// Node returns the child Config at name, or nil when there is none.
func (c *Config) Node(name names.Name) *Config {
	node, ok := GetNode(c, name)
	if !ok {
		return nil
	}
	child, _ := node.(*Config)
	return child
}

// OnChange registers a listener under owner. Owners are compared by ==;
// pass a pointer for identity semantics.
func (c *Config) OnChange(owner any, fn Listener) {
	c.listeners.Add(owner, fn)
}

// RemoveListener removes every listener registered under owner.
func (c *Config) RemoveListener(owner any) {
	c.listeners.Remove(owner)
}

// Set replaces the item at name, creating intermediate nodes as needed.
// A nil item removes it. A NodeItem holding a *Config attaches that Config
// as a child, detaching it from any previous parent; any other Meta is
// deep-copied.
//
// Set panics for the empty name.
func (c *Config) Set(name names.Name, item Item) {
	tok, ok := name.First()
	if !ok {
		panic("meta: cannot set an item at the empty name")
	}
	if name.Len() == 1 {
		c.replace(tok, item)
		return
	}
	if item == nil {
		// Removing below a missing node must not create it.
		child := c.Node(tok.AsName())
		if child != nil {
			child.Set(name.CutFirst(), nil)
		}
		return
	}
	c.childForWrite(tok).Set(name.CutFirst(), item)
}

// Remove deletes the item at name. It is Set(name, nil).
func (c *Config) Remove(name names.Name) {
	c.Set(name, nil)
}

// childForWrite returns the child Config at tok, replacing a value or
// creating an empty node when needed.
func (c *Config) childForWrite(tok names.Token) *Config {
	c.mu.Lock()
	if s, ok := c.children.Get(tok); ok && s.child != nil {
		c.mu.Unlock()
		return s.child
	}
	child := NewConfig()
	newSlot := &slot{item: NodeItem{Node: child}, child: child}
	old, _ := c.children.Set(tok, newSlot)
	newSlot.detach = child.attach(c, tok)
	c.mu.Unlock()

	c.fire(tok.AsName(), slotItem(old), newSlot.item)
	return child
}

func (c *Config) replace(tok names.Token, item Item) {
	var newSlot *slot
	switch it := item.(type) {
	case ValueItem:
		newSlot = &slot{item: it}
	case NodeItem:
		child, ok := it.Node.(*Config)
		if ok {
			c.checkNotAncestor(child)
			child.leaveParent(c, tok)
		} else {
			child = ToConfig(it.Node)
		}
		newSlot = &slot{item: NodeItem{Node: child}, child: child}
	}

	c.mu.Lock()
	var old *slot
	if newSlot == nil {
		old, _ = c.children.Delete(tok)
	} else {
		old, _ = c.children.Set(tok, newSlot)
		if newSlot.child != nil && (old == nil || old.child != newSlot.child) {
			newSlot.detach = newSlot.child.attach(c, tok)
		} else if old != nil && old.child == newSlot.child {
			newSlot.detach = old.detach
		}
	}
	c.mu.Unlock()

	if old == nil && newSlot == nil {
		return
	}
	if old != nil && old.detach != nil && (newSlot == nil || old.child != newSlot.child) {
		old.detach()
	}
	var newItem Item
	if newSlot != nil {
		newItem = newSlot.item
	}
	c.fire(tok.AsName(), slotItem(old), newItem)
}

func slotItem(s *slot) Item {
	if s == nil {
		return nil
	}
	return s.item
}

// attach links c under parent at key and returns the detach handle.
// The caller holds parent.mu; lock order is always parent before child.
func (c *Config) attach(parent *Config, key names.Token) func() {
	link := &parentLink{parent: parent, key: key}
	c.mu.Lock()
	c.link = link
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.link == link {
			c.link = nil
		}
	}
}

// leaveParent removes c from its current parent unless that parent is
// already (newParent, key).
func (c *Config) leaveParent(newParent *Config, key names.Token) {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	if link == nil || (link.parent == newParent && link.key == key) {
		return
	}
	link.parent.removeChild(link.key, c)
}

// removeChild removes the slot at key if it still holds child.
func (c *Config) removeChild(key names.Token, child *Config) {
	c.mu.Lock()
	s, ok := c.children.Get(key)
	if !ok || s.child != child {
		c.mu.Unlock()
		return
	}
	c.children.Delete(key)
	c.mu.Unlock()

	if s.detach != nil {
		s.detach()
	}
	c.fire(key.AsName(), s.item, nil)
}

// checkNotAncestor panics if child is c or one of c's ancestors, which
// would make change forwarding loop forever.
func (c *Config) checkNotAncestor(child *Config) {
	for node := c; node != nil; {
		if node == child {
			panic("meta: cannot attach a config inside its own subtree")
		}
		node.mu.Lock()
		link := node.link
		node.mu.Unlock()
		if link == nil {
			return
		}
		node = link.parent
	}
}

// fire notifies this node's listeners, then forwards to the parent with the
// name prefixed by this node's key.
func (c *Config) fire(name names.Name, oldItem, newItem Item) {
	for _, fn := range c.listeners.Snapshot() {
		fn(name, oldItem, newItem)
	}

	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	if link != nil {
		link.parent.fire(link.key.AsName().Plus(name), oldItem, newItem)
	}
}

// putQuiet stores an item without notifications. Only used while building
// a Config nobody can observe yet.
func (c *Config) putQuiet(tok names.Token, item Item) {
	s := &slot{item: item}
	if n, ok := item.(NodeItem); ok {
		child := AsConfig(n.Node)
		s.item = NodeItem{Node: child}
		s.child = child
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children.Set(tok, s)
	if s.child != nil {
		s.detach = s.child.attach(c, tok)
	}
}

// Update merges m into c: values are set, nodes are merged recursively.
// Names absent from m are left untouched.
func (c *Config) Update(m Meta) {
	if m == nil {
		return
	}
	for _, child := range m.Items() {
		switch it := child.Item.(type) {
		case ValueItem:
			c.replace(child.Token, it)
		case NodeItem:
			if existing := c.Node(child.Token.AsName()); existing != nil {
				existing.Update(it.Node)
				continue
			}
			c.replace(child.Token, NodeItem{Node: ToConfig(it.Node)})
		}
	}
}
