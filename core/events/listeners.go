// Package events provides owner-scoped listener registries.
// Listeners are registered together with an owner token so that every
// listener belonging to one object can be removed in a single call.
package events

import (
	"fmt"
	"reflect"
	"sync"
)

type entry[F any] struct {
	owner any
	fn    F
}

// Listeners is a thread-safe, ordered set of callbacks keyed by owner.
// Owners are compared with ==, so pointer owners give identity semantics.
// Owners must be of a comparable type; maps, slices and funcs are rejected.
// The zero value is ready to use.
type Listeners[F any] struct {
	mu      sync.Mutex
	entries []entry[F]
}

// Add registers fn under owner. Listeners fire in registration order.
// Add panics when owner is not comparable.
func (l *Listeners[F]) Add(owner any, fn F) {
	if !isComparable(owner) {
		panic(fmt.Sprintf("events: listener owner of type %T is not comparable", owner))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry[F]{owner: owner, fn: fn})
}

// Remove drops every listener registered under owner.
// It returns the number of removed listeners.
func (l *Listeners[F]) Remove(owner any) int {
	if !isComparable(owner) {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	removed := 0
	for _, e := range l.entries {
		if e.owner == owner {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// Clear the tail so dropped closures can be collected.
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = entry[F]{}
	}
	l.entries = kept
	return removed
}

// isComparable reports whether owner can be used with ==. A nil owner is.
func isComparable(owner any) bool {
	t := reflect.TypeOf(owner)
	return t == nil || t.Comparable()
}

// Snapshot copies the current callbacks. Callers invoke them without
// holding the registry lock so a listener may mutate the registry.
func (l *Listeners[F]) Snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return nil
	}
	out := make([]F, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.fn
	}
	return out
}

// Len returns the number of registered listeners.
func (l *Listeners[F]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe registers fn under a fresh private owner and returns a function
// that removes exactly that listener.
func (l *Listeners[F]) Subscribe(fn F) (cancel func()) {
	owner := new(byte)
	l.Add(owner, fn)
	var once sync.Once
	return func() {
		once.Do(func() { l.Remove(owner) })
	}
}
