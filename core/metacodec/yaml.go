package metacodec

import (
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

const (
	tagBinary = "!!binary"
	tagNull   = "!!null"
	tagBool   = "!!bool"
	tagInt    = "!!int"
	tagFloat  = "!!float"
	tagStr    = "!!str"
)

type yamlCodec struct{}

func (yamlCodec) Name() string         { return "yaml" }
func (yamlCodec) Extensions() []string { return []string{"yaml", "yml"} }

// Encode writes m as a YAML document in child order.
func (yamlCodec) Encode(w io.Writer, m meta.Meta) error {
	node, err := yamlNode(m)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return err
	}
	return enc.Close()
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func yamlNode(m meta.Meta) (*yaml.Node, error) {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, g := range groupChildren(m) {
		var valueNode *yaml.Node
		if isPlain(g) {
			n, err := yamlItem(g.members[0].Item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", g.body, err)
			}
			valueNode = n
		} else {
			valueNode = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, c := range g.members {
				member := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
				member.Content = append(member.Content, scalar(tagStr, meta.IndexKey), scalar(tagStr, c.Token.Index))
				switch it := c.Item.(type) {
				case meta.ValueItem:
					v, err := yamlValue(it.Value)
					if err != nil {
						return nil, err
					}
					member.Content = append(member.Content, scalar(tagStr, meta.ValueKey), v)
				case meta.NodeItem:
					inner, err := yamlNode(it.Node)
					if err != nil {
						return nil, err
					}
					member.Content = append(member.Content, inner.Content...)
				}
				valueNode.Content = append(valueNode.Content, member)
			}
		}
		out.Content = append(out.Content, scalar(tagStr, g.body), valueNode)
	}
	return out, nil
}

func yamlItem(item meta.Item) (*yaml.Node, error) {
	switch it := item.(type) {
	case meta.ValueItem:
		return yamlValue(it.Value)
	case meta.NodeItem:
		return yamlNode(it.Node)
	}
	return nil, fmt.Errorf("unsupported item %T", item)
}

func yamlValue(v values.Value) (*yaml.Node, error) {
	switch x := v.(type) {
	case nil, values.Null:
		return scalar(tagNull, "null"), nil
	case values.Bool:
		return scalar(tagBool, strconv.FormatBool(bool(x))), nil
	case values.String:
		return scalar(tagStr, string(x)), nil
	case values.Number:
		if x.IsInt() {
			return scalar(tagInt, strconv.FormatInt(x.Int64(), 10)), nil
		}
		f := x.Float64()
		switch {
		case math.IsNaN(f):
			return scalar(tagFloat, ".nan"), nil
		case math.IsInf(f, 1):
			return scalar(tagFloat, ".inf"), nil
		case math.IsInf(f, -1):
			return scalar(tagFloat, "-.inf"), nil
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if f == math.Trunc(f) && !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return scalar(tagFloat, s), nil
	case values.Binary:
		return scalar(tagBinary, base64.StdEncoding.EncodeToString(x)), nil
	case values.List:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, el := range x {
			n, err := yamlValue(el)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

// Decode reads a YAML mapping, keeping key order. An empty document is
// the empty Meta.
func (yamlCodec) Decode(r io.Reader) (meta.Meta, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return meta.Empty, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return meta.Empty, nil
		}
		root = root.Content[0]
	}
	cfg, err := configFromYAML(root)
	if err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return meta.Seal(cfg), nil
}

// FromYAMLNode converts an already parsed YAML mapping, e.g. a section of
// a larger configuration file.
func FromYAMLNode(n *yaml.Node) (meta.Meta, error) {
	if n == nil || n.Kind == 0 {
		return meta.Empty, nil
	}
	cfg, err := configFromYAML(n)
	if err != nil {
		return nil, err
	}
	return meta.Seal(cfg), nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func configFromYAML(n *yaml.Node) (*meta.Config, error) {
	n = resolveAlias(n)
	if n.Kind == yaml.ScalarNode && n.ShortTag() == tagNull {
		return meta.NewConfig(), nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	cfg := meta.NewConfig()
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := resolveAlias(n.Content[i]), resolveAlias(n.Content[i+1])
		tok := names.NewToken(key.Value)
		if err := putYAML(cfg, tok, value); err != nil {
			return nil, fmt.Errorf("%s: %w", key.Value, err)
		}
	}
	return cfg, nil
}

func putYAML(cfg *meta.Config, tok names.Token, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		child, err := configFromYAML(n)
		if err != nil {
			return err
		}
		cfg.Set(tok.AsName(), meta.Node(child))
		return nil
	case yaml.SequenceNode:
		if isYAMLGroup(n) {
			for i, el := range n.Content {
				child, err := configFromYAML(el)
				if err != nil {
					return err
				}
				member, item := groupMember(tok, i, child)
				cfg.Set(member.AsName(), item)
			}
			return nil
		}
	}
	v, err := yamlToValue(n)
	if err != nil {
		return err
	}
	cfg.Set(tok.AsName(), meta.ValueItem{Value: v})
	return nil
}

func isYAMLGroup(n *yaml.Node) bool {
	if len(n.Content) == 0 {
		return false
	}
	for _, el := range n.Content {
		if resolveAlias(el).Kind != yaml.MappingNode {
			return false
		}
	}
	return true
}

func yamlToValue(n *yaml.Node) (values.Value, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.SequenceNode:
		list := make(values.List, len(n.Content))
		for i, el := range n.Content {
			v, err := yamlToValue(el)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case yaml.ScalarNode:
	default:
		return nil, fmt.Errorf("line %d: expected a scalar", n.Line)
	}

	switch n.ShortTag() {
	case tagNull:
		return values.Null{}, nil
	case tagBool:
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return values.Bool(b), nil
	case tagInt:
		var i int64
		if err := n.Decode(&i); err != nil {
			var f float64
			if ferr := n.Decode(&f); ferr != nil {
				return nil, err
			}
			return values.Float(f), nil
		}
		return values.Int(i), nil
	case tagFloat:
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return values.Float(f), nil
	case tagBinary:
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return values.Binary(b), nil
	default:
		return values.String(n.Value), nil
	}
}
