package meta

import (
	"fmt"
	"math"

	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// ConversionError reports an item that exists but has the wrong shape.
type ConversionError struct {
	Name names.Name
	Want string
	Got  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("meta: %s: cannot convert %s to %s", e.Name, e.Got, e.Want)
}

func describe(item Item) string {
	switch it := item.(type) {
	case ValueItem:
		return string(it.Value.Type())
	case NodeItem:
		return "node"
	default:
		return "nothing"
	}
}

// lookupValue returns the value at name. ok is false when nothing is
// stored there; err is set when a node is stored instead.
func lookupValue(m Meta, name names.Name, want string) (v values.Value, ok bool, err error) {
	item := Get(m, name)
	if item == nil {
		return nil, false, nil
	}
	v, isValue := AsValue(item)
	if !isValue {
		return nil, false, &ConversionError{Name: name, Want: want, Got: describe(item)}
	}
	if _, null := v.(values.Null); null {
		return nil, false, nil
	}
	return v, true, nil
}

// GetString returns the string at name, or def when absent or null.
func GetString(m Meta, name names.Name, def string) (string, error) {
	v, ok, err := lookupValue(m, name, "string")
	if err != nil || !ok {
		return def, err
	}
	s, isString := v.(values.String)
	if !isString {
		return def, &ConversionError{Name: name, Want: "string", Got: string(v.Type())}
	}
	return string(s), nil
}

// GetBool returns the boolean at name, or def when absent or null.
func GetBool(m Meta, name names.Name, def bool) (bool, error) {
	v, ok, err := lookupValue(m, name, "boolean")
	if err != nil || !ok {
		return def, err
	}
	b, isBool := v.(values.Bool)
	if !isBool {
		return def, &ConversionError{Name: name, Want: "boolean", Got: string(v.Type())}
	}
	return bool(b), nil
}

// GetNumber returns the number at name, or def when absent or null.
func GetNumber(m Meta, name names.Name, def float64) (float64, error) {
	v, ok, err := lookupValue(m, name, "number")
	if err != nil || !ok {
		return def, err
	}
	n, isNumber := v.(values.Number)
	if !isNumber {
		return def, &ConversionError{Name: name, Want: "number", Got: string(v.Type())}
	}
	return n.Float64(), nil
}

// GetInt returns the integer at name, or def when absent or null.
// Floats are accepted when they hold a whole number within int64 range;
// numbers with a fractional part are rejected.
func GetInt(m Meta, name names.Name, def int64) (int64, error) {
	v, ok, err := lookupValue(m, name, "integer")
	if err != nil || !ok {
		return def, err
	}
	n, isNumber := v.(values.Number)
	if !isNumber || !wholeNumber(n) {
		return def, &ConversionError{Name: name, Want: "integer", Got: v.String()}
	}
	return n.Int64(), nil
}

// wholeNumber reports whether n converts to int64 without loss.
func wholeNumber(n values.Number) bool {
	if n.IsInt() {
		return true
	}
	f := n.Float64()
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64
}

// GetStringList returns the list of strings at name. A single string is
// returned as a one-element list.
func GetStringList(m Meta, name names.Name, def []string) ([]string, error) {
	v, ok, err := lookupValue(m, name, "list")
	if err != nil || !ok {
		return def, err
	}
	switch x := v.(type) {
	case values.String:
		return []string{string(x)}, nil
	case values.List:
		out := make([]string, len(x))
		for i, el := range x {
			s, isString := el.(values.String)
			if !isString {
				return def, &ConversionError{Name: name, Want: "list of strings", Got: "list containing " + string(el.Type())}
			}
			out[i] = string(s)
		}
		return out, nil
	default:
		return def, &ConversionError{Name: name, Want: "list", Got: string(v.Type())}
	}
}

// SetValue stores a native value at name. A nil v removes the item.
func SetValue(c *Config, name names.Name, v any) error {
	if v == nil {
		c.Remove(name)
		return nil
	}
	val, err := values.Of(v)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	c.Set(name, ValueItem{Value: val})
	return nil
}
