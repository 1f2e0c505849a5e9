// Package values provides the scalar value variants stored at meta tree
// leaves and pure conversion and comparison functions.
// This package has NO dependencies on I/O or external packages.
package values

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type identifies a value variant.
type Type string

const (
	TypeNull    Type = "null"
	TypeBoolean Type = "boolean"
	TypeNumber  Type = "number"
	TypeString  Type = "string"
	TypeList    Type = "list"
	TypeBinary  Type = "binary"
)

// ParseType parses a type name as written in descriptors.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeNull, TypeBoolean, TypeNumber, TypeString, TypeList, TypeBinary:
		return t, nil
	case "bool":
		return TypeBoolean, nil
	default:
		return "", fmt.Errorf("unknown value type %q", s)
	}
}

// Value is a closed set of scalar variants: Null, Bool, Number, String,
// List and Binary.
type Value interface {
	Type() Type
	String() string
	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// String is a string value.
type String string

// List is an ordered list of values.
type List []Value

// Binary is an opaque byte payload.
type Binary []byte

// Number holds either an integer or a floating point number.
// Equality between numbers is type tolerant.
type Number struct {
	i     int64
	f     float64
	float bool
}

// True and False are the boolean values.
const (
	True  = Bool(true)
	False = Bool(false)
)

// Int creates an integer number.
func Int(i int64) Number {
	return Number{i: i}
}

// Float creates a floating point number.
func Float(f float64) Number {
	return Number{f: f, float: true}
}

func (Null) Type() Type   { return TypeNull }
func (Bool) Type() Type   { return TypeBoolean }
func (Number) Type() Type { return TypeNumber }
func (String) Type() Type { return TypeString }
func (List) Type() Type   { return TypeList }
func (Binary) Type() Type { return TypeBinary }

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (List) isValue()   {}
func (Binary) isValue() {}

func (Null) String() string { return "null" }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (s String) String() string { return string(s) }

func (b Binary) String() string { return base64.StdEncoding.EncodeToString(b) }

func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (n Number) String() string {
	if n.float {
		return strconv.FormatFloat(n.f, 'g', -1, 64)
	}
	return strconv.FormatInt(n.i, 10)
}

// IsInt reports whether the number was created from an integer.
func (n Number) IsInt() bool {
	return !n.float
}

// Float64 returns the number as float64.
func (n Number) Float64() float64 {
	if n.float {
		return n.f
	}
	return float64(n.i)
}

// Int64 returns the number truncated to int64.
func (n Number) Int64() int64 {
	if n.float {
		return int64(n.f)
	}
	return n.i
}

// Of converts a native Go value into a Value.
// Nested slices become lists; []byte becomes Binary.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Binary(bytes.Clone(x)), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case []Value:
		return List(x), nil
	case []string:
		out := make(List, len(x))
		for i, s := range x {
			out[i] = String(s)
		}
		return out, nil
	case []float64:
		out := make(List, len(x))
		for i, f := range x {
			out[i] = Float(f)
		}
		return out, nil
	case []int:
		out := make(List, len(x))
		for i, n := range x {
			out[i] = Int(int64(n))
		}
		return out, nil
	case []any:
		out := make(List, len(x))
		for i, item := range x {
			converted, err := Of(item)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// MustOf is like Of but panics for unsupported types.
func MustOf(v any) Value {
	out, err := Of(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Native converts a Value back to a plain Go value:
// nil, bool, int64, float64, string, []any or []byte.
func Native(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(x)
	case Number:
		if x.float {
			return x.f
		}
		return x.i
	case String:
		return string(x)
	case Binary:
		return []byte(x)
	case List:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Native(item)
		}
		return out
	default:
		return nil
	}
}

// Equal compares two values. Numbers compare by magnitude regardless of
// integer or float representation.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch x := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Binary:
		y, ok := b.(Binary)
		return ok && bytes.Equal(x, y)
	case Number:
		y, ok := b.(Number)
		if !ok {
			return false
		}
		if !x.float && !y.float {
			return x.i == y.i
		}
		return x.Float64() == y.Float64()
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Key returns a string that is identical for equal values.
// It is used for order independent hashing.
func Key(v Value) string {
	switch x := v.(type) {
	case nil, Null:
		return "n:"
	case Number:
		f := x.Float64()
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return "d:" + strconv.FormatInt(int64(f), 10)
		}
		return "d:" + strconv.FormatFloat(f, 'g', -1, 64)
	case List:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = Key(item)
		}
		return "l:[" + strings.Join(parts, ",") + "]"
	default:
		return string(v.Type()) + ":" + v.String()
	}
}
