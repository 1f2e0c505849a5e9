package descriptors

import (
	"testing"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

func demo() *NodeDescriptor {
	return New(func(d *NodeDescriptor) {
		d.Node("aNode", func(n *NodeDescriptor) {
			n.SetInfo("A root demo node")
			n.Value("b", func(v *ValueDescriptor) {
				v.SetInfo("b number value")
				v.SetType(values.TypeNumber)
			})
			n.Node("otherNode", func(o *NodeDescriptor) {
				o.Value("otherValue", func(v *ValueDescriptor) {
					v.SetType(values.TypeBoolean)
					v.SetDefault(false)
					v.SetInfo("default value")
				})
			})
		})
	})
}

func TestAllowedValuesEmptyByDefault(t *testing.T) {
	d := demo()

	if d.Get(names.MustParse("aNode.b")) == nil {
		t.Fatal("aNode.b descriptor not found")
	}
	b := d.Nodes()["aNode"].Values()["b"]
	if b == nil {
		t.Fatal("aNode has no value b")
	}
	if allowed := b.AllowedValues(); len(allowed) != 0 {
		t.Errorf("AllowedValues = %v, want empty", allowed)
	}
	if b.Info() != "b number value" {
		t.Errorf("Info = %q", b.Info())
	}
}

func TestDefaultMeta(t *testing.T) {
	m := DefaultMeta(demo())

	v, err := meta.GetBool(m, names.MustParse("aNode.otherNode.otherValue"), true)
	if err != nil {
		t.Fatal(err)
	}
	if v != false {
		t.Errorf("aNode.otherNode.otherValue = %v, want false", v)
	}
	if meta.Get(m, names.MustParse("aNode.b")) != nil {
		t.Error("values without default must not appear")
	}
}

func TestNodeDefaultWinsOverChildDefaults(t *testing.T) {
	d := New(func(d *NodeDescriptor) {
		d.Node("n", func(n *NodeDescriptor) {
			n.SetDefault(meta.NewBuilder().Put("x", 10).Seal())
			n.Value("x", func(v *ValueDescriptor) { v.SetDefault(1) })
			n.Value("y", func(v *ValueDescriptor) { v.SetDefault(2) })
		})
	})

	m := DefaultMeta(d)
	want := meta.NewBuilder().Put("n.x", 10).Put("n.y", 2).Seal()
	if !meta.Equal(m, want) {
		t.Errorf("DefaultMeta:\n%s", meta.String(m))
	}
}

func TestItemsKeepDeclarationOrder(t *testing.T) {
	d := New(func(d *NodeDescriptor) {
		d.Value("z", nil)
		d.Node("m", nil)
		d.Value("a", nil)
	})

	var keys []string
	for _, e := range d.Items() {
		keys = append(keys, e.Key)
	}
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "m" || keys[2] != "a" {
		t.Errorf("Items keys = %v", keys)
	}
	if _, ok := d.Items()[1].Item.(*NodeDescriptor); !ok {
		t.Error("m should be a node descriptor")
	}
}

func TestDottedDeclarationCreatesNodes(t *testing.T) {
	d := New(func(d *NodeDescriptor) {
		d.Value("a.b.c", func(v *ValueDescriptor) { v.SetDefault("x") })
	})

	if _, ok := d.Get(names.MustParse("a.b")).(*NodeDescriptor); !ok {
		t.Fatal("intermediate node descriptors were not created")
	}
	s, _ := meta.GetString(DefaultMeta(d), names.MustParse("a.b.c"), "")
	if s != "x" {
		t.Errorf("a.b.c default = %q", s)
	}
}

func TestMisusePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"empty value name", func() { New(func(d *NodeDescriptor) { d.Value("", nil) }) }},
		{"duplicate key", func() {
			New(func(d *NodeDescriptor) {
				d.Value("a", nil)
				d.Node("a", nil)
			})
		}},
		{"value in the way", func() {
			New(func(d *NodeDescriptor) {
				d.Value("a", nil)
				d.Value("a.b", nil)
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected a panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestPlusIsLeftBiased(t *testing.T) {
	a := New(func(d *NodeDescriptor) {
		d.Value("shared", func(v *ValueDescriptor) { v.SetInfo("from a") })
		d.Value("onlyA", nil)
	})
	b := New(func(d *NodeDescriptor) {
		d.Value("shared", func(v *ValueDescriptor) {
			v.SetInfo("from b")
			v.SetDefault(3)
		})
		d.Value("onlyB", nil)
	})

	merged := Plus(a, b)

	shared := merged.Values()["shared"]
	if shared == nil {
		t.Fatal("shared descriptor missing")
	}
	if shared.Info() != "from a" {
		t.Errorf("Info = %q, want from a", shared.Info())
	}
	if def := shared.Default(); def == nil || def.String() != "3" {
		t.Errorf("non-conflicting keys of b should survive, default = %v", def)
	}
	if len(merged.Items()) != 3 {
		t.Errorf("merged has %d items, want 3", len(merged.Items()))
	}
}

func TestDescriptorMetaRoundTrip(t *testing.T) {
	d := FromMeta(demo().Meta())
	if d.Get(names.MustParse("aNode.otherNode.otherValue")) == nil {
		t.Fatal("descriptor lost content when rebuilt from its meta")
	}
}

func TestValidate(t *testing.T) {
	d := New(func(d *NodeDescriptor) {
		d.Value("name", func(v *ValueDescriptor) {
			v.SetRequired(true)
			v.SetType(values.TypeString)
		})
		d.Value("mode", func(v *ValueDescriptor) {
			v.SetAllowedValues("fast", "slow")
		})
		d.Value("count", func(v *ValueDescriptor) {
			v.SetType(values.TypeNumber)
			v.SetConstraint("value > 0 && value < 10")
		})
		d.Node("nested", func(n *NodeDescriptor) {
			n.SetRequired(true)
			n.Value("flag", func(v *ValueDescriptor) { v.SetType(values.TypeBoolean) })
		})
	})

	tests := []struct {
		name    string
		meta    meta.Meta
		reasons map[string]string
	}{
		{
			name: "valid",
			meta: meta.NewBuilder().
				Put("name", "x").Put("mode", "fast").Put("count", 3).Put("nested.flag", true).
				Seal(),
		},
		{
			name: "missing required",
			meta: meta.NewBuilder().Put("count", 1).Seal(),
			reasons: map[string]string{
				"name":   ReasonRequired,
				"nested": ReasonRequired,
			},
		},
		{
			name: "wrong values",
			meta: meta.NewBuilder().
				Put("name", 42).Put("mode", "medium").Put("count", 12).Put("nested.flag", "yes").
				Seal(),
			reasons: map[string]string{
				"name":        ReasonType,
				"mode":        ReasonAllowed,
				"count":       ReasonConstraint,
				"nested.flag": ReasonType,
			},
		},
		{
			name: "shape mismatch",
			meta: meta.NewBuilder().Put("name.inner", "x").Put("nested", 1).Seal(),
			reasons: map[string]string{
				"name":   ReasonShape,
				"nested": ReasonShape,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(d, tt.meta)
			got := make(map[string]string)
			for _, v := range r.Violations {
				got[v.Name.String()] = v.Reason
			}
			if len(got) != len(tt.reasons) {
				t.Fatalf("violations = %v, want %v", r.Violations, tt.reasons)
			}
			for name, reason := range tt.reasons {
				if got[name] != reason {
					t.Errorf("%s: reason %q, want %q", name, got[name], reason)
				}
			}
			if (r.Err() == nil) != r.Valid() {
				t.Error("Err and Valid disagree")
			}
		})
	}
}
