package meta

import (
	"testing"

	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

func sample() Meta {
	return NewBuilder().
		Put("a", 22).
		Put("node.b", "DDD").
		Put("node.c", 11.1).
		Put("node.array", []int{1, 2, 3}).
		Seal()
}

func TestGet(t *testing.T) {
	m := sample()

	tests := []struct {
		name string
		want values.Value
	}{
		{"a", values.Int(22)},
		{"node.b", values.String("DDD")},
		{"node.c", values.Float(11.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetValue(m, names.MustParse(tt.name))
			if !ok {
				t.Fatalf("GetValue(%q) missed", tt.name)
			}
			if !values.Equal(got, tt.want) {
				t.Errorf("GetValue(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	for _, miss := range []string{"b", "a.b", "node.x", "node.b.c", "x.y.z"} {
		if item := Get(m, names.MustParse(miss)); item != nil {
			t.Errorf("Get(%q) = %v, want nil", miss, item)
		}
	}

	if _, ok := Get(m, names.Empty).(NodeItem); !ok {
		t.Error("Get(empty) should return the node itself")
	}
}

func TestEqualIgnoresOrder(t *testing.T) {
	a := NewBuilder().Put("a", 22).Put("b.c", "ddd").Put("b.d", true).Seal()
	b := NewBuilder().Put("b.d", true).Put("b.c", "ddd").Put("a", 22.0).Seal()

	if !Equal(a, b) {
		t.Fatalf("metas should be equal:\n%s\n---\n%s", String(a), String(b))
	}
	if Hash(a) != Hash(b) {
		t.Error("equal metas must hash equal")
	}

	c := NewBuilder().Put("a", 22).Put("b.c", "ddd").Seal()
	if Equal(a, c) {
		t.Error("metas with different content compared equal")
	}
}

func TestFlattenOrder(t *testing.T) {
	m := NewBuilder().Put("z", 1).Put("b.y", 2).Put("b.x", 3).Put("a", 4).Seal()

	var got []string
	for _, e := range Flatten(m) {
		got = append(got, e.Name.String())
	}
	want := []string{"z", "b.y", "b.x", "a"}
	if len(got) != len(want) {
		t.Fatalf("Flatten = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Flatten[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGetIndexed(t *testing.T) {
	point := func(x int) Meta { return NewBuilder().Put("x", x).Seal() }
	m := NewBuilder().
		PutIndexed(names.MustParse("data.point"), point(1), point(2), point(3)).
		Put("data.other", "x").
		Seal()

	group := GetIndexed(m, names.MustParse("data.point"))
	if len(group) != 3 {
		t.Fatalf("GetIndexed returned %d items, want 3", len(group))
	}
	for i, g := range group {
		node, ok := AsNode(g.Item)
		if !ok {
			t.Fatalf("item %d is not a node", i)
		}
		x, err := GetInt(node, names.FromBodies("x"), 0)
		if err != nil || x != int64(i+1) {
			t.Errorf("point[%s].x = %d (%v), want %d", g.Index, x, err, i+1)
		}
	}

	if _, ok := GetValue(m, names.MustParse("data.point[1].x")); !ok {
		t.Error("indexed child should be addressable by name")
	}
}

func TestMapRoundTrip(t *testing.T) {
	nodes := make([]Meta, 5)
	for i := range nodes {
		nodes[i] = NewBuilder().Put("value", i).Put("label", "n").Seal()
	}
	m := NewBuilder().
		Put("a", 22).
		Put("node.b", "DDD").
		Put("node.flag", false).
		Put("node.array", []float64{1, 2.5}).
		Put("bin", []byte{1, 2, 3}).
		PutIndexed(names.MustParse("list"), nodes...).
		Seal()

	back, err := FromMap(ToMap(m))
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if !Equal(m, back) {
		t.Errorf("round trip changed the meta:\n%s\n---\n%s", String(m), String(back))
	}
	if _, ok := GetValue(back, names.MustParse("list[4].value")); !ok {
		t.Error("indexed nodes lost their index")
	}
}

func TestFromMapIndexedValues(t *testing.T) {
	src := map[string]any{
		"item": []any{
			map[string]any{IndexKey: "first", ValueKey: "a"},
			map[string]any{IndexKey: "second", ValueKey: "b"},
		},
	}
	m, err := FromMap(src)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	got, err := GetString(m, names.MustParse("item[second]"), "")
	if err != nil || got != "b" {
		t.Errorf("item[second] = %q (%v), want b", got, err)
	}
}

func TestSealCopiesConfig(t *testing.T) {
	cfg := ToConfig(sample())
	sealed := Seal(cfg)

	cfg.Set(names.MustParse("node.b"), Value("EEE"))

	got, _ := GetString(sealed, names.MustParse("node.b"), "")
	if got != "DDD" {
		t.Errorf("sealed meta changed with its source: node.b = %q", got)
	}
}

func TestBuilderPutIndexedCopiesConfig(t *testing.T) {
	owner := NewConfig()
	owner.Set(names.MustParse("child.x"), Value(1))
	changes := 0
	owner.OnChange(&changes, func(names.Name, Item, Item) { changes++ })

	built := NewBuilder().PutIndexed(names.FromBodies("pts"), owner.Node(names.FromBodies("child"))).Seal()

	if x, err := GetInt(owner, names.MustParse("child.x"), -1); err != nil || x != 1 {
		t.Errorf("owner child.x = %d (%v), want 1", x, err)
	}
	if changes != 0 {
		t.Errorf("owner saw %d changes, want 0", changes)
	}
	if x, err := GetInt(built, names.MustParse("pts[0].x"), -1); err != nil || x != 1 {
		t.Errorf("pts[0].x = %d (%v), want 1", x, err)
	}
}

func TestAccessors(t *testing.T) {
	m := NewBuilder().
		Put("s", "text").
		Put("i", 7).
		Put("f", 1.5).
		Put("b", true).
		Put("list", []string{"x", "y"}).
		Put("node.v", 1).
		Seal()

	if s, err := GetString(m, names.FromBodies("s"), ""); err != nil || s != "text" {
		t.Errorf("GetString = %q, %v", s, err)
	}
	if s, err := GetString(m, names.FromBodies("missing"), "def"); err != nil || s != "def" {
		t.Errorf("GetString default = %q, %v", s, err)
	}
	if i, err := GetInt(m, names.FromBodies("i"), 0); err != nil || i != 7 {
		t.Errorf("GetInt = %d, %v", i, err)
	}
	whole := NewBuilder().Put("n", values.Float(22)).Put("big", values.Float(1e19)).Seal()
	if i, err := GetInt(whole, names.FromBodies("n"), -1); err != nil || i != 22 {
		t.Errorf("GetInt(22.0) = %d, %v", i, err)
	}
	if _, err := GetInt(whole, names.FromBodies("big"), -1); err == nil {
		t.Error("GetInt accepted a float outside int64 range")
	}
	if f, err := GetNumber(m, names.FromBodies("i"), 0); err != nil || f != 7 {
		t.Errorf("GetNumber(int) = %v, %v", f, err)
	}
	if b, err := GetBool(m, names.FromBodies("b"), false); err != nil || !b {
		t.Errorf("GetBool = %v, %v", b, err)
	}
	if l, err := GetStringList(m, names.FromBodies("list"), nil); err != nil || len(l) != 2 || l[1] != "y" {
		t.Errorf("GetStringList = %v, %v", l, err)
	}

	var convErr *ConversionError
	mismatches := []func() error{
		func() error { _, err := GetInt(m, names.FromBodies("f"), 0); return err },
		func() error { _, err := GetBool(m, names.FromBodies("s"), false); return err },
		func() error { _, err := GetString(m, names.FromBodies("node"), ""); return err },
		func() error { _, err := GetNumber(m, names.FromBodies("s"), 0); return err },
	}
	for i, fn := range mismatches {
		err := fn()
		if err == nil {
			t.Errorf("case %d: expected a conversion error", i)
			continue
		}
		if ce, ok := err.(*ConversionError); !ok {
			t.Errorf("case %d: error %T is not a *ConversionError", i, err)
		} else {
			convErr = ce
		}
	}
	if convErr != nil && convErr.Error() == "" {
		t.Error("empty error message")
	}
}
