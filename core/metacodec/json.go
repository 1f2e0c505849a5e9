package metacodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

type jsonCodec struct{}

func (jsonCodec) Name() string         { return "json" }
func (jsonCodec) Extensions() []string { return []string{"json"} }

// Encode writes m as indented JSON in child order.
func (jsonCodec) Encode(w io.Writer, m meta.Meta) error {
	var compact bytes.Buffer
	if err := writeNode(&compact, m); err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}

type group struct {
	body    string
	members []meta.Child
}

func groupChildren(m meta.Meta) []group {
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

func isPlain(g group) bool {
	return len(g.members) == 1 && !g.members[0].Token.HasIndex()
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeNode(buf *bytes.Buffer, m meta.Meta) error {
	buf.WriteByte('{')
	for i, g := range groupChildren(m) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, g.body)
		buf.WriteByte(':')
		if isPlain(g) {
			if err := writeItem(buf, g.members[0].Item); err != nil {
				return fmt.Errorf("%s: %w", g.body, err)
			}
			continue
		}
		buf.WriteByte('[')
		for j, c := range g.members {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeMember(buf, c); err != nil {
				return fmt.Errorf("%s: %w", c.Token, err)
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return nil
}

// writeMember writes one member of an indexed group.
func writeMember(buf *bytes.Buffer, c meta.Child) error {
	buf.WriteByte('{')
	writeString(buf, meta.IndexKey)
	buf.WriteByte(':')
	writeString(buf, c.Token.Index)

	switch it := c.Item.(type) {
	case meta.ValueItem:
		buf.WriteByte(',')
		writeString(buf, meta.ValueKey)
		buf.WriteByte(':')
		if err := writeValue(buf, it.Value); err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	case meta.NodeItem:
		var inner bytes.Buffer
		if err := writeNode(&inner, it.Node); err != nil {
			return err
		}
		// Splice the node's members after the index.
		body := inner.Bytes()
		if len(body) > 2 {
			buf.WriteByte(',')
			buf.Write(body[1 : len(body)-1])
		}
		buf.WriteByte('}')
		return nil
	}
	return fmt.Errorf("unsupported item %T", c.Item)
}

func writeItem(buf *bytes.Buffer, item meta.Item) error {
	switch it := item.(type) {
	case meta.ValueItem:
		return writeValue(buf, it.Value)
	case meta.NodeItem:
		return writeNode(buf, it.Node)
	}
	return fmt.Errorf("unsupported item %T", item)
}

func writeValue(buf *bytes.Buffer, v values.Value) error {
	switch x := v.(type) {
	case nil, values.Null:
		buf.WriteString("null")
	case values.Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case values.String:
		writeString(buf, string(x))
	case values.Number:
		if x.IsInt() {
			buf.WriteString(strconv.FormatInt(x.Int64(), 10))
			break
		}
		f := x.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("cannot encode %v as JSON", f)
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case values.Binary:
		buf.WriteByte('{')
		writeString(buf, BinaryKey)
		buf.WriteByte(':')
		writeString(buf, base64.StdEncoding.EncodeToString(x))
		buf.WriteByte('}')
	case values.List:
		buf.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

// Decode reads a JSON object, keeping member order.
func (jsonCodec) Decode(r io.Reader) (meta.Meta, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode json: expected an object, got %v", tok)
	}
	cfg := meta.NewConfig()
	if err := readObject(dec, cfg); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return meta.Seal(cfg), nil
}

// DecodeJSONItem reads a single JSON value as an item. Objects become nodes
// with member order kept; {"@binary": ...} and scalars become values.
func DecodeJSONItem(r io.Reader) (meta.Item, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	raw, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	el, err := readElement(dec, raw)
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if el.node != nil {
		return meta.Node(meta.Seal(el.node)), nil
	}
	return meta.ValueItem{Value: el.value}, nil
}

// element is a decoded JSON value: either a node or a scalar/list value.
type element struct {
	node  *meta.Config
	value values.Value
}

// readObject reads members up to and including the closing brace.
func readObject(dec *json.Decoder, cfg *meta.Config) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected a key, got %v", tok)
		}
		if err := readMember(dec, cfg, names.NewToken(key)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	_, err := dec.Token()
	return err
}

func readMember(dec *json.Decoder, cfg *meta.Config, tok names.Token) error {
	raw, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := raw.(json.Delim); ok && d == '[' {
		elems, err := readArray(dec)
		if err != nil {
			return err
		}
		return putSequence(cfg, tok, elems)
	}
	el, err := readElement(dec, raw)
	if err != nil {
		return err
	}
	if el.node != nil {
		cfg.Set(tok.AsName(), meta.Node(el.node))
		return nil
	}
	cfg.Set(tok.AsName(), meta.ValueItem{Value: el.value})
	return nil
}

// readElement decodes a value whose first token is raw.
func readElement(dec *json.Decoder, raw json.Token) (element, error) {
	switch x := raw.(type) {
	case json.Delim:
		switch x {
		case '{':
			child := meta.NewConfig()
			if err := readObject(dec, child); err != nil {
				return element{}, err
			}
			if bin, ok, err := binaryOf(child); ok || err != nil {
				return element{value: bin}, err
			}
			return element{node: child}, nil
		case '[':
			elems, err := readArray(dec)
			if err != nil {
				return element{}, err
			}
			list := make(values.List, len(elems))
			for i, el := range elems {
				if el.node != nil {
					return element{}, errors.New("objects inside a value list")
				}
				list[i] = el.value
			}
			return element{value: list}, nil
		}
		return element{}, fmt.Errorf("unexpected %v", x)
	case nil:
		return element{value: values.Null{}}, nil
	case bool:
		return element{value: values.Bool(x)}, nil
	case string:
		return element{value: values.String(x)}, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return element{value: values.Int(i)}, nil
		}
		f, err := x.Float64()
		if err != nil {
			return element{}, err
		}
		return element{value: values.Float(f)}, nil
	}
	return element{}, fmt.Errorf("unexpected token %v", raw)
}

func readArray(dec *json.Decoder) ([]element, error) {
	var out []element
	for dec.More() {
		raw, err := dec.Token()
		if err != nil {
			return nil, err
		}
		el, err := readElement(dec, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	_, err := dec.Token()
	return out, err
}

// binaryOf recognizes {"@binary": "<base64>"}.
func binaryOf(cfg *meta.Config) (values.Value, bool, error) {
	items := cfg.Items()
	if len(items) != 1 || items[0].Token != names.NewToken(BinaryKey) {
		return nil, false, nil
	}
	v, ok := meta.AsValue(items[0].Item)
	if !ok {
		return nil, false, nil
	}
	s, ok := v.(values.String)
	if !ok {
		return nil, true, fmt.Errorf("%s must be a base64 string", BinaryKey)
	}
	b, err := base64.StdEncoding.DecodeString(string(s))
	if err != nil {
		return nil, true, err
	}
	return values.Binary(b), true, nil
}

// putSequence stores a decoded sequence either as an indexed group (all
// elements are nodes) or as a list value.
func putSequence(cfg *meta.Config, tok names.Token, elems []element) error {
	group := len(elems) > 0
	for _, el := range elems {
		if el.node == nil {
			group = false
			break
		}
	}
	if !group {
		list := make(values.List, len(elems))
		for i, el := range elems {
			if el.node != nil {
				return errors.New("objects mixed with values in a list")
			}
			list[i] = el.value
		}
		cfg.Set(tok.AsName(), meta.ValueItem{Value: list})
		return nil
	}
	for i, el := range elems {
		member, item := groupMember(tok, i, el.node)
		cfg.Set(member.AsName(), item)
	}
	return nil
}

// groupMember extracts "@index" and "@value" from a decoded group member.
func groupMember(tok names.Token, position int, node *meta.Config) (names.Token, meta.Item) {
	member := tok.WithIndex(strconv.Itoa(position))
	indexName := names.NewToken(meta.IndexKey).AsName()
	if v, ok := meta.GetValue(node, indexName); ok {
		if _, null := v.(values.Null); !null {
			member = tok.WithIndex(v.String())
		}
		node.Remove(indexName)
	}
	valueName := names.NewToken(meta.ValueKey).AsName()
	if v, ok := meta.GetValue(node, valueName); ok && len(node.Items()) == 1 {
		return member, meta.ValueItem{Value: v}
	}
	return member, meta.Node(node)
}
