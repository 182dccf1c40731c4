package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a single cell: nil, bool, int64, float64, string, time.Time or
// []Value.
type Value = any

// Type is the declared type of a column.
type Type int

const (
	TypeNull Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeDate
	TypeList
	TypeAny
)

var typeNames = map[Type]string{
	TypeNull:   "null",
	TypeBool:   "boolean",
	TypeInt:    "integer",
	TypeFloat:  "float",
	TypeString: "string",
	TypeDate:   "date",
	TypeList:   "list",
	TypeAny:    "any",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// TypeOf returns the type of a single value.
func TypeOf(v Value) Type {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBool
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case string:
		return TypeString
	case time.Time:
		return TypeDate
	case []Value:
		return TypeList
	default:
		return TypeAny
	}
}

// unify returns the type of a column holding values of types a and b.
func unify(a, b Type) Type {
	switch {
	case a == b:
		return a
	case a == TypeNull:
		return b
	case b == TypeNull:
		return a
	case (a == TypeInt && b == TypeFloat) || (a == TypeFloat && b == TypeInt):
		return TypeFloat
	default:
		return TypeAny
	}
}

// Normalize converts Go values produced by decoders and drivers into the
// value model. Unsupported values are formatted as strings.
func Normalize(v any) Value {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case []Value:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Format renders a value as text. Null is the empty string.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case time.Time:
		return FormatDate(x)
	case []Value:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Format(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// FormatDate renders a date without a time part when it falls on midnight UTC.
func FormatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// TypeName describes a value for error messages.
func TypeName(v Value) string {
	return TypeOf(v).String()
}

// Truthy reports whether v counts as true in a predicate. Only true does.
func Truthy(v Value) bool {
	b, ok := v.(bool)
	return ok && b
}

// AsInt converts integral numbers that fit in an int64.
func AsInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		if x == math.Trunc(x) && x >= -0x1p63 && x < 0x1p63 {
			return int64(x), true
		}
	}
	return 0, false
}

// IsIntegral reports whether v is an integer or a finite float with no
// fractional part, in or out of int64 range.
func IsIntegral(v Value) bool {
	switch x := v.(type) {
	case int64:
		return true
	case float64:
		return x == math.Trunc(x) && !math.IsInf(x, 0)
	}
	return false
}

// AsFloat converts numbers to float64.
func AsFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// IsNull reports whether v is null. NaN counts as null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

// ParseNumber parses an integer or float literal. Underscores and
// surrounding whitespace are not accepted.
func ParseNumber(s string) (Value, bool) {
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

// Infer converts a text cell into the most specific value it spells:
// empty → null, integer, float, true/false, otherwise the string itself.
func Infer(s string) Value {
	if s == "" {
		return nil
	}
	if v, ok := ParseNumber(s); ok {
		return v
	}
	switch s {
	case "true", "TRUE", "True":
		return true
	case "false", "FALSE", "False":
		return false
	}
	return s
}
