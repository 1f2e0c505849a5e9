package metacodec_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

func richMeta() meta.Meta {
	points := make([]meta.Meta, 3)
	for i := range points {
		points[i] = meta.NewBuilder().Put("x", i).Put("y", float64(i)+0.5).Seal()
	}
	return meta.NewBuilder().
		Put("a", 22).
		Put("node.b", "DDD").
		Put("node.c", 11.1).
		Put("node.array", []int{1, 2, 3}).
		Put("node.flag", true).
		Put("node.quoted", "true").
		Put("node.whole", 3.0).
		Put("blob", []byte{0, 1, 2, 254}).
		Put("empty", []string{}).
		Put("nothing", nil).
		PutIndexed(names.MustParse("points"), points...).
		Put("labels[x]", "first").
		Put("labels[y]", "second").
		Seal()
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []metacodec.Codec{metacodec.JSON, metacodec.YAML, metacodec.CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			src := richMeta()
			b, err := metacodec.Marshal(c, src)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			back, err := metacodec.Unmarshal(c, b)
			if err != nil {
				t.Fatalf("Unmarshal: %v\n%s", err, b)
			}
			if !meta.Equal(src, back) {
				t.Errorf("round trip mismatch\nwant:\n%s\ngot:\n%s\nencoded:\n%s", meta.String(src), meta.String(back), b)
			}
		})
	}
}

func TestOrderedCodecsKeepChildOrder(t *testing.T) {
	src := meta.NewBuilder().Put("z", 1).Put("m.y", 2).Put("m.b", 3).Put("a", 4).Seal()

	for _, c := range []metacodec.Codec{metacodec.JSON, metacodec.YAML} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := metacodec.Marshal(c, src)
			if err != nil {
				t.Fatal(err)
			}
			back, err := metacodec.Unmarshal(c, b)
			if err != nil {
				t.Fatal(err)
			}
			if meta.String(back) != meta.String(src) {
				t.Errorf("order changed:\n%s", meta.String(back))
			}
		})
	}
}

func TestJSONLayout(t *testing.T) {
	src := meta.NewBuilder().
		Put("a", 22).
		Put("bin", []byte("hi")).
		Put("p[0].v", 1).
		Seal()

	b, err := metacodec.Marshal(metacodec.JSON, src)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	for _, want := range []string{`"a": 22`, `"@binary": "aGk="`, `"@index": "0"`, `"v": 1`} {
		if !strings.Contains(out, want) {
			t.Errorf("JSON output misses %s:\n%s", want, out)
		}
	}
}

func TestJSONDecodeGroupsWithoutIndex(t *testing.T) {
	in := `{"point": [{"x": 1}, {"x": 2}], "list": [1, "two", true]}`
	m, err := metacodec.JSON.Decode(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	x, err := meta.GetInt(m, names.MustParse("point[1].x"), 0)
	if err != nil || x != 2 {
		t.Errorf("point[1].x = %d (%v), want 2", x, err)
	}
	list, ok := meta.GetValue(m, names.MustParse("list"))
	if !ok || list.Type() != values.TypeList {
		t.Errorf("list = %v", list)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		codec metacodec.Codec
		input string
	}{
		{metacodec.JSON, `[1, 2]`},
		{metacodec.JSON, `{"a": }`},
		{metacodec.JSON, `{"a": {"@binary": 5}}`},
		{metacodec.JSON, `{"a": [{"x": 1}, 2]}`},
		{metacodec.YAML, "- 1\n- 2\n"},
		{metacodec.YAML, "a: !!binary '***'\n"},
		{metacodec.CBOR, "\xff\xff"},
	}
	for _, tt := range tests {
		if _, err := metacodec.Unmarshal(tt.codec, []byte(tt.input)); err == nil {
			t.Errorf("%s: expected an error for %q", tt.codec.Name(), tt.input)
		}
	}
}

func TestYAMLEmptyDocument(t *testing.T) {
	m, err := metacodec.YAML.Decode(bytes.NewReader(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Items()) != 0 {
		t.Errorf("expected the empty meta, got %s", meta.String(m))
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"conf.json", "json"},
		{"conf.YML", "yaml"},
		{"dir/conf.yaml", "yaml"},
		{"payload.cbor", "cbor"},
	}
	for _, tt := range tests {
		c, err := metacodec.ForPath(tt.path)
		if err != nil {
			t.Errorf("ForPath(%q): %v", tt.path, err)
			continue
		}
		if c.Name() != tt.want {
			t.Errorf("ForPath(%q) = %s, want %s", tt.path, c.Name(), tt.want)
		}
	}

	if _, err := metacodec.ForPath("conf.toml"); !errors.Is(err, metacodec.ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := metacodec.ByName("cbor"); err != nil {
		t.Error(err)
	}
}

// A Config survives serialization and keeps notifying listeners with
// absolute names afterwards.
func TestConfigSerializeAndListen(t *testing.T) {
	src := meta.NewBuilder().Put("a", 22).Put("node.b", "DDD").Put("node.c", 11.1).Seal()
	cfg := meta.ToConfig(src)

	for _, c := range []metacodec.Codec{metacodec.JSON, metacodec.CBOR} {
		b, err := metacodec.Marshal(c, cfg)
		if err != nil {
			t.Fatal(err)
		}
		back, err := metacodec.Unmarshal(c, b)
		if err != nil {
			t.Fatal(err)
		}
		if !meta.Equal(cfg, back) {
			t.Fatalf("%s round trip mismatch", c.Name())
		}
	}

	var fired []string
	owner := new(int)
	cfg.OnChange(owner, func(name names.Name, _, _ meta.Item) {
		fired = append(fired, name.String())
	})
	cfg.Set(names.MustParse("node.b"), meta.Value("EEE"))

	if len(fired) != 1 || fired[0] != "node.b" {
		t.Errorf("fired = %v, want [node.b]", fired)
	}
}
