package descriptors

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// Violation reasons.
const (
	ReasonRequired   = "required"
	ReasonType       = "type"
	ReasonAllowed    = "allowed_values"
	ReasonConstraint = "constraint"
	ReasonShape      = "shape"
)

// Violation is a single validation failure.
type Violation struct {
	Name    names.Name `json:"name"`
	Reason  string     `json:"reason"`
	Message string     `json:"message"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Name, v.Message)
}

// Result holds every violation found by Validate.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Valid reports whether no violation was found.
func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

func (r *Result) add(name names.Name, reason, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Name:    name,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	})
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Violations: r.Violations}
}

// ValidationError is the error form of an invalid Result.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// DefaultMeta builds a Meta holding every default declared in d. An
// explicit node default wins over the defaults of its children.
func DefaultMeta(d *NodeDescriptor) meta.Meta {
	return meta.Seal(defaultConfig(d))
}

func defaultConfig(d *NodeDescriptor) *meta.Config {
	cfg := meta.ToConfig(d.Default())
	for _, e := range d.Items() {
		tok, err := names.ParseToken(e.Key)
		if err != nil {
			continue
		}
		switch it := e.Item.(type) {
		case *ValueDescriptor:
			if def := it.Default(); def != nil && cfg.Get(tok.AsName()) == nil {
				cfg.Set(tok.AsName(), meta.ValueItem{Value: def})
			}
		case *NodeDescriptor:
			child := defaultConfig(it)
			if len(child.Items()) == 0 {
				continue
			}
			if existing := cfg.Node(tok.AsName()); existing != nil {
				fillMissing(existing, child)
				continue
			}
			if cfg.Get(tok.AsName()) == nil {
				cfg.Set(tok.AsName(), meta.Node(child))
			}
		}
	}
	return cfg
}

// fillMissing copies items of src absent from dst.
func fillMissing(dst *meta.Config, src meta.Meta) {
	for _, c := range src.Items() {
		current := dst.Get(c.Token.AsName())
		if current == nil {
			dst.Set(c.Token.AsName(), c.Item)
			continue
		}
		srcNode, ok := meta.AsNode(c.Item)
		if !ok {
			continue
		}
		if dstNode := dst.Node(c.Token.AsName()); dstNode != nil {
			fillMissing(dstNode, srcNode)
		}
	}
}

// Validate checks m against d. Names not described by d are accepted.
// Values are never coerced: a number where a string is expected is a
// violation.
func Validate(d *NodeDescriptor, m meta.Meta) Result {
	var r Result
	validateNode(&r, d, m, names.Empty)
	return r
}

func validateNode(r *Result, d *NodeDescriptor, m meta.Meta, prefix names.Name) {
	for _, e := range d.Items() {
		tok, err := names.ParseToken(e.Key)
		if err != nil {
			r.add(prefix, ReasonShape, "bad descriptor key %q: %v", e.Key, err)
			continue
		}
		name := prefix.Append(tok)
		item := meta.Get(m, tok.AsName())

		switch desc := e.Item.(type) {
		case *ValueDescriptor:
			validateValue(r, desc, item, name)
		case *NodeDescriptor:
			if item == nil {
				if desc.Required() && desc.Default() == nil {
					r.add(name, ReasonRequired, "node is required")
				}
				continue
			}
			node, ok := meta.AsNode(item)
			if !ok {
				r.add(name, ReasonShape, "expected a node, found a value")
				continue
			}
			validateNode(r, desc, node, name)
		}
	}
}

func validateValue(r *Result, d *ValueDescriptor, item meta.Item, name names.Name) {
	var v values.Value
	switch it := item.(type) {
	case nil:
	case meta.NodeItem:
		r.add(name, ReasonShape, "expected a value, found a node")
		return
	case meta.ValueItem:
		v = it.Value
	}
	if _, null := v.(values.Null); null {
		v = nil
	}
	if v == nil {
		if d.Required() && d.Default() == nil {
			r.add(name, ReasonRequired, "value is required")
		}
		return
	}

	if types := d.Types(); len(types) > 0 && !slices.Contains(types, v.Type()) {
		r.add(name, ReasonType, "type %s is not one of %v", v.Type(), types)
		return
	}

	if allowed := d.AllowedValues(); len(allowed) > 0 {
		if !slices.ContainsFunc(allowed, func(a values.Value) bool { return values.Equal(a, v) }) {
			r.add(name, ReasonAllowed, "value %s is not allowed", v)
			return
		}
	}

	if expression := d.Constraint(); expression != "" {
		ok, err := evalConstraint(expression, v)
		switch {
		case err != nil:
			r.add(name, ReasonConstraint, "constraint %q: %v", expression, err)
		case !ok:
			r.add(name, ReasonConstraint, "value %s does not satisfy %q", v, expression)
		}
	}
}

var programs sync.Map // expression -> *vm.Program

func evalConstraint(expression string, v values.Value) (bool, error) {
	var program *vm.Program
	if cached, ok := programs.Load(expression); ok {
		program = cached.(*vm.Program)
	} else {
		compiled, err := expr.Compile(expression, expr.Env(map[string]any{"value": nil}), expr.AsBool())
		if err != nil {
			return false, err
		}
		programs.Store(expression, compiled)
		program = compiled
	}

	out, err := expr.Run(program, map[string]any{"value": values.Native(v)})
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
