package meta

import (
	"sync"
	"testing"

	"github.com/artpar/dataforge/domain/names"
)

type change struct {
	name     string
	old, new Item
}

// recorder collects change notifications.
type recorder struct {
	mu      sync.Mutex
	changes []change
}

func (r *recorder) listen(name names.Name, oldItem, newItem Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{name: name.String(), old: oldItem, new: newItem})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.name
	}
	return out
}

func TestConfigBubbling(t *testing.T) {
	root := ToConfig(NewBuilder().Put("a.b.c", 1).Seal())
	rec := &recorder{}
	root.OnChange(rec, rec.listen)

	root.Set(names.MustParse("a.b.c"), Value(2))

	got := rec.names()
	if len(got) != 1 || got[0] != "a.b.c" {
		t.Fatalf("changes = %v, want [a.b.c]", got)
	}
	old, _ := AsValue(rec.changes[0].old)
	if old.String() != "1" {
		t.Errorf("old value = %v, want 1", old)
	}
}

func TestConfigBubblingFromChildHandle(t *testing.T) {
	root := NewConfig()
	root.Set(names.MustParse("x.y.z"), Value("v"))

	rec := &recorder{}
	root.OnChange(rec, rec.listen)

	grandchild := root.Node(names.MustParse("x.y"))
	if grandchild == nil {
		t.Fatal("intermediate nodes were not created")
	}
	grandchild.Set(names.FromBodies("z"), Value("w"))

	got := rec.names()
	if len(got) != 1 || got[0] != "x.y.z" {
		t.Errorf("changes = %v, want [x.y.z]", got)
	}
}

func TestChildListenersFireBeforeParent(t *testing.T) {
	root := NewConfig()
	root.Set(names.MustParse("child.v"), Value(1))
	child := root.Node(names.FromBodies("child"))

	var order []string
	child.OnChange("child", func(names.Name, Item, Item) { order = append(order, "child") })
	root.OnChange("root", func(names.Name, Item, Item) { order = append(order, "root") })

	child.Set(names.FromBodies("v"), Value(2))

	if len(order) != 2 || order[0] != "child" || order[1] != "root" {
		t.Errorf("notification order = %v, want [child root]", order)
	}
}

func TestRemoveListener(t *testing.T) {
	cfg := NewConfig()
	ownerA, ownerB := &recorder{}, &recorder{}
	cfg.OnChange(ownerA, ownerA.listen)
	cfg.OnChange(ownerB, ownerB.listen)

	cfg.Set(names.FromBodies("a"), Value(1))
	cfg.RemoveListener(ownerA)
	cfg.Set(names.FromBodies("a"), Value(2))
	cfg.Set(names.MustParse("n.b"), Value(3))

	if got := len(ownerA.names()); got != 1 {
		t.Errorf("removed owner saw %d changes, want 1", got)
	}
	if got := ownerB.names(); len(got) != 4 {
		// a, a, n (node created), n.b
		t.Errorf("remaining owner saw %v", got)
	}
}

func TestRemoveDetachesChild(t *testing.T) {
	root := NewConfig()
	root.Set(names.MustParse("n.v"), Value(1))
	child := root.Node(names.FromBodies("n"))

	rec := &recorder{}
	root.OnChange(rec, rec.listen)

	root.Remove(names.FromBodies("n"))
	child.Set(names.FromBodies("v"), Value(2))

	got := rec.names()
	if len(got) != 1 || got[0] != "n" {
		t.Fatalf("changes = %v, want only the removal of n", got)
	}
	if rec.changes[0].new != nil {
		t.Error("removal should report a nil new item")
	}
	if root.Get(names.MustParse("n.v")) != nil {
		t.Error("removed subtree still reachable")
	}
}

func TestRemoveMissingIsQuiet(t *testing.T) {
	cfg := NewConfig()
	rec := &recorder{}
	cfg.OnChange(rec, rec.listen)

	cfg.Remove(names.MustParse("a.b.c"))

	if len(rec.names()) != 0 {
		t.Errorf("removing a missing name fired %v", rec.names())
	}
	if cfg.Get(names.FromBodies("a")) != nil {
		t.Error("removing a missing name created intermediate nodes")
	}
}

func TestReparent(t *testing.T) {
	first, second := NewConfig(), NewConfig()
	first.Set(names.MustParse("shared.v"), Value(1))
	shared := first.Node(names.FromBodies("shared"))

	recFirst, recSecond := &recorder{}, &recorder{}
	first.OnChange(recFirst, recFirst.listen)
	second.OnChange(recSecond, recSecond.listen)

	second.Set(names.FromBodies("moved"), Node(shared))

	if first.Get(names.FromBodies("shared")) != nil {
		t.Error("re-parented config still attached to its old parent")
	}
	if got := recFirst.names(); len(got) != 1 || got[0] != "shared" {
		t.Errorf("old parent changes = %v, want [shared]", got)
	}

	shared.Set(names.FromBodies("v"), Value(2))

	if got := recFirst.names(); len(got) != 1 {
		t.Errorf("old parent still receives changes: %v", got)
	}
	got := recSecond.names()
	if len(got) != 2 || got[1] != "moved.v" {
		t.Errorf("new parent changes = %v, want [moved moved.v]", got)
	}
}

func TestAttachIntoOwnSubtreePanics(t *testing.T) {
	root := NewConfig()
	root.Set(names.MustParse("a.b.c"), Value(1))
	inner := root.Node(names.MustParse("a.b"))

	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	inner.Set(names.FromBodies("loop"), Node(root))
}

func TestSetEmptyNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	NewConfig().Set(names.Empty, Value(1))
}

func TestToConfigIsDeepCopy(t *testing.T) {
	src := ToConfig(sample())
	rec := &recorder{}
	src.OnChange(rec, rec.listen)

	cp := src.Copy()
	cp.Set(names.MustParse("node.b"), Value("changed"))

	if got, _ := GetString(src, names.MustParse("node.b"), ""); got != "DDD" {
		t.Errorf("copy shares nodes with its source: node.b = %q", got)
	}
	if len(rec.names()) != 0 {
		t.Error("copy carried listeners over")
	}
	if !Equal(src, sample()) {
		t.Error("source changed")
	}
}

func TestListenerMayMutate(t *testing.T) {
	cfg := NewConfig()
	cfg.OnChange("mirror", func(name names.Name, _, newItem Item) {
		if name.String() == "in" {
			cfg.Set(names.FromBodies("out"), newItem)
		}
	})

	cfg.Set(names.FromBodies("in"), Value(5))

	if v, err := GetInt(cfg, names.FromBodies("out"), 0); err != nil || v != 5 {
		t.Errorf("out = %d (%v), want 5", v, err)
	}
}

func TestUpdateMerges(t *testing.T) {
	cfg := ToConfig(NewBuilder().Put("a", 1).Put("n.x", 1).Put("n.y", 2).Seal())
	node := cfg.Node(names.FromBodies("n"))

	cfg.Update(NewBuilder().Put("n.y", 3).Put("n.z", 4).Put("b", true).Seal())

	want := NewBuilder().Put("a", 1).Put("n.x", 1).Put("n.y", 3).Put("n.z", 4).Put("b", true).Seal()
	if !Equal(cfg, want) {
		t.Errorf("Update result:\n%s", String(cfg))
	}
	if cfg.Node(names.FromBodies("n")) != node {
		t.Error("Update replaced an existing node instead of merging into it")
	}
}

func TestSyncFiresOnlyForDifferences(t *testing.T) {
	cfg := ToConfig(NewBuilder().Put("a", 1).Put("n.x", 1).Put("n.y", 2).Put("gone", "x").Seal())
	rec := &recorder{}
	cfg.OnChange(rec, rec.listen)

	target := NewBuilder().Put("a", 1).Put("n.x", 1).Put("n.y", 5).Put("new", "v").Seal()
	Sync(cfg, target)

	if !Equal(cfg, target) {
		t.Fatalf("Sync result:\n%s", String(cfg))
	}
	got := rec.names()
	want := map[string]bool{"n.y": true, "new": true, "gone": true}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %d entries", got, len(want))
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected change %s", n)
		}
	}
}

func TestSetValue(t *testing.T) {
	cfg := NewConfig()
	if err := SetValue(cfg, names.MustParse("a.b"), 3.5); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(cfg, names.MustParse("a.c"), struct{}{}); err == nil {
		t.Error("expected an error for an unsupported type")
	}
	if err := SetValue(cfg, names.MustParse("a.b"), nil); err != nil {
		t.Fatal(err)
	}
	if cfg.Get(names.MustParse("a.b")) != nil {
		t.Error("nil should remove the value")
	}
}

func TestConfigConcurrentWrites(t *testing.T) {
	cfg := NewConfig()
	var mu sync.Mutex
	fired := 0
	cfg.OnChange("count", func(names.Name, Item, Item) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg.Set(names.Of(names.NewToken("shared"), names.NewToken("k").WithIndex(string(rune('a'+i)))), Value(i))
		}(i)
	}
	wg.Wait()

	if n := len(Flatten(cfg)); n != 20 {
		t.Errorf("stored %d values, want 20", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if fired < 20 {
		t.Errorf("fired %d times, want at least 20", fired)
	}
}
