package events

import (
	"sync"
	"testing"
)

func TestListenersOrder(t *testing.T) {
	var l Listeners[func(int)]
	var got []int

	l.Add("a", func(int) { got = append(got, 1) })
	l.Add("b", func(int) { got = append(got, 2) })
	l.Add("a", func(int) { got = append(got, 3) })

	for _, fn := range l.Snapshot() {
		fn(0)
	}

	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestListenersRemoveByOwner(t *testing.T) {
	var l Listeners[func()]
	ownerA := new(int)
	ownerB := new(int)

	calledA, calledB := 0, 0
	l.Add(ownerA, func() { calledA++ })
	l.Add(ownerA, func() { calledA++ })
	l.Add(ownerB, func() { calledB++ })

	if removed := l.Remove(ownerA); removed != 2 {
		t.Errorf("Remove returned %d, want 2", removed)
	}

	for _, fn := range l.Snapshot() {
		fn()
	}
	if calledA != 0 {
		t.Errorf("removed owner's listeners fired %d times", calledA)
	}
	if calledB != 1 {
		t.Errorf("other owner's listener fired %d times, want 1", calledB)
	}
}

func TestListenersOwnerIdentity(t *testing.T) {
	type token struct{ id int }
	var l Listeners[func()]

	first := &token{id: 1}
	second := &token{id: 1} // equal value, different identity

	l.Add(first, func() {})
	l.Remove(second)

	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1: owners must compare by identity", l.Len())
	}
}

func TestSubscribeCancel(t *testing.T) {
	var l Listeners[func()]
	calls := 0

	cancel := l.Subscribe(func() { calls++ })
	l.Subscribe(func() { calls += 10 })

	cancel()
	cancel()

	for _, fn := range l.Snapshot() {
		fn()
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestListenerMayMutateRegistry(t *testing.T) {
	var l Listeners[func()]
	owner := new(int)
	l.Add(owner, func() {
		l.Remove(owner)
		l.Add("late", func() {})
	})

	for _, fn := range l.Snapshot() {
		fn()
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

func TestListenersConcurrent(t *testing.T) {
	var l Listeners[func()]
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		owner := new(int)
		go func() {
			defer wg.Done()
			l.Add(owner, func() {})
		}()
		go func() {
			defer wg.Done()
			_ = l.Snapshot()
		}()
	}
	wg.Wait()

	if l.Len() != 50 {
		t.Errorf("Len = %d, want 50", l.Len())
	}
}

func TestListenersRejectNonComparableOwner(t *testing.T) {
	var l Listeners[func()]
	l.Add("a", func() {})

	if n := l.Remove(map[string]int{}); n != 0 {
		t.Errorf("Remove(map) = %d, want 0", n)
	}
	if n := l.Remove(func() {}); n != 0 {
		t.Errorf("Remove(func) = %d, want 0", n)
	}

	defer func() {
		if recover() == nil {
			t.Error("Add with a slice owner should panic")
		}
		if l.Len() != 1 {
			t.Errorf("Len = %d, want 1", l.Len())
		}
	}()
	l.Add([]int{1}, func() {})
}
