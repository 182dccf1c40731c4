package table

import (
	"math"
	"strings"
	"time"
)

// Compare orders two non-null values. Numbers compare across int and float.
// ok is false when the values have incomparable types.
func Compare(a, b Value) (c int, ok bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y), true
		case float64:
			return cmpIntFloat(x, y), true
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return -cmpIntFloat(y, x), true
		case float64:
			return cmpFloat(x, y), true
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case []Value:
		if y, ok := b.([]Value); ok {
			for i := 0; i < len(x) && i < len(y); i++ {
				c, ok := Compare(x[i], y[i])
				if !ok {
					return 0, false
				}
				if c != 0 {
					return c, true
				}
			}
			return cmpOrdered(len(x), len(y)), true
		}
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}

// Order is a total order used for sorting: nulls last, then values of
// comparable kinds by Compare, then by kind.
func Order(a, b Value) int {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	if c, ok := Compare(a, b); ok {
		return c
	}
	return cmpOrdered(kindRank(a), kindRank(b))
}

// Equal reports whether two values are equal. Null equals null.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

func kindRank(v Value) int {
	switch v.(type) {
	case bool:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case time.Time:
		return 3
	case []Value:
		return 4
	default:
		return 5
	}
}

func cmpOrdered[T int | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// cmpIntFloat compares exactly, without rounding i to the nearest float.
func cmpIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return -1
	case f >= 0x1p63:
		return -1
	case f < -0x1p63:
		return 1
	}
	t := math.Trunc(f)
	if c := cmpOrdered(i, int64(t)); c != 0 {
		return c
	}
	return cmpFloat(0, f-t)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	case math.IsNaN(a) && !math.IsNaN(b):
		return 1
	case !math.IsNaN(a) && math.IsNaN(b):
		return -1
	default:
		return 0
	}
}
