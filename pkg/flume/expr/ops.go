package expr

import (
	"math"
	"strings"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

func unaryOp(op string, v table.Value) (table.Value, error) {
	switch op {
	case "-":
		switch x := v.(type) {
		case nil:
			return nil, nil
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
	case "NOT":
		switch x := v.(type) {
		case nil:
			return true, nil
		case bool:
			return !x, nil
		}
	}
	return nil, ferrors.New("TYPE-0005", map[string]any{"Operator": op, "Got": table.TypeName(v)})
}

func binaryOp(op string, l, r table.Value) (table.Value, error) {
	switch op {
	case "AND", "OR":
		return logicalOp(op, l, r)
	case "=":
		return table.Equal(l, r), nil
	case "<>":
		return !table.Equal(l, r), nil
	case "<", "<=", ">", ">=":
		return compareOp(op, l, r)
	case "IN":
		return inOp(l, r)
	case "+", "-", "*", "/", "%", "^":
		return arithmeticOp(op, l, r)
	}
	return nil, typeMismatch(op, l, r)
}

func typeMismatch(op string, l, r table.Value) error {
	return ferrors.New("TYPE-0002", map[string]any{"Operator": op, "Left": table.TypeName(l), "Right": table.TypeName(r)})
}

// logicalOp treats null as false. Any other non-boolean operand is an error.
func logicalOp(op string, l, r table.Value) (table.Value, error) {
	lb, lok := asBool(l)
	rb, rok := asBool(r)
	if !lok || !rok {
		return nil, typeMismatch(op, l, r)
	}
	if op == "AND" {
		return lb && rb, nil
	}
	return lb || rb, nil
}

func asBool(v table.Value) (bool, bool) {
	switch x := v.(type) {
	case nil:
		return false, true
	case bool:
		return x, true
	}
	return false, false
}

// compareOp orders two values. A null operand never satisfies an ordering.
func compareOp(op string, l, r table.Value) (table.Value, error) {
	if table.IsNull(l) || table.IsNull(r) {
		return false, nil
	}
	c, ok := table.Compare(l, r)
	if !ok {
		return nil, typeMismatch(op, l, r)
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

// inOp is list membership, or a case-insensitive substring test when the
// right operand is a string.
func inOp(l, r table.Value) (table.Value, error) {
	switch hay := r.(type) {
	case nil:
		return false, nil
	case []table.Value:
		for _, v := range hay {
			if table.Equal(l, v) {
				return true, nil
			}
		}
		return false, nil
	case string:
		if table.IsNull(l) {
			return false, nil
		}
		return strings.Contains(strings.ToLower(hay), strings.ToLower(table.Format(l))), nil
	}
	return nil, typeMismatch("IN", l, r)
}

func arithmeticOp(op string, l, r table.Value) (table.Value, error) {
	if table.IsNull(l) || table.IsNull(r) {
		return nil, nil
	}

	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok && op == "+" {
			return ls + rs, nil
		}
		return nil, typeMismatch(op, l, r)
	}

	li, lInt := l.(int64)
	ri, rInt := r.(int64)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "%":
			if ri == 0 {
				return nil, nil
			}
			return li % ri, nil
		case "^":
			if ri >= 0 {
				return intPow(li, ri), nil
			}
		}
	}

	lf, lok := number(l)
	rf, rok := number(r)
	if !lok || !rok {
		return nil, typeMismatch(op, l, r)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, nil
		}
		return math.Mod(lf, rf), nil
	default:
		return math.Pow(lf, rf), nil
	}
}

func number(v table.Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// indexOp indexes lists and strings. Negative indexes count from the end;
// out-of-range indexes give null.
func indexOp(v, idx table.Value) (table.Value, error) {
	if table.IsNull(v) {
		return nil, nil
	}
	i, ok := idx.(int64)
	if !ok {
		return nil, ferrors.New("TYPE-0004", map[string]any{"Got": table.TypeName(v), "IndexType": table.TypeName(idx)})
	}
	switch x := v.(type) {
	case []table.Value:
		if i < 0 {
			i += int64(len(x))
		}
		if i < 0 || i >= int64(len(x)) {
			return nil, nil
		}
		return x[i], nil
	case string:
		runes := []rune(x)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, nil
		}
		return string(runes[i]), nil
	}
	return nil, ferrors.New("TYPE-0004", map[string]any{"Got": table.TypeName(v), "IndexType": table.TypeName(idx)})
}
