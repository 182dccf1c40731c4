package table

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/dchest/siphash"
)

const (
	hashK0 = 0x736f6d6570736575
	hashK1 = 0x646f72616e646f6d
)

// value tags in the canonical encoding
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagDate
	tagList
)

// HashRow hashes the values of row i in the given columns. Values that are
// Equal hash alike: integral floats are encoded as integers and NaN as null.
func HashRow(cols []*Column, i int) uint64 {
	buf := make([]byte, 0, 16*len(cols))
	for _, c := range cols {
		buf = appendCanonical(buf, c.values[i])
	}
	return siphash.Hash(hashK0, hashK1, buf)
}

func appendCanonical(buf []byte, v Value) []byte {
	if IsNull(v) {
		return append(buf, tagNull)
	}
	switch x := v.(type) {
	case bool:
		if x {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case int64:
		buf = append(buf, tagInt)
		return binary.LittleEndian.AppendUint64(buf, uint64(x))
	case float64:
		if i, ok := AsInt(x); ok && float64(i) == x {
			buf = append(buf, tagInt)
			return binary.LittleEndian.AppendUint64(buf, uint64(i))
		}
		buf = append(buf, tagFloat)
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
	case string:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		return append(buf, x...)
	case time.Time:
		buf = append(buf, tagDate)
		return binary.LittleEndian.AppendUint64(buf, uint64(x.UnixNano()))
	case []Value:
		buf = append(buf, tagList)
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		for _, e := range x {
			buf = appendCanonical(buf, e)
		}
		return buf
	default:
		buf = append(buf, tagString)
		s := Format(x)
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		return append(buf, s...)
	}
}

// RowsEqual reports whether row i of a and row j of b are equal in every
// column. a and b must have the same length.
func RowsEqual(a []*Column, i int, b []*Column, j int) bool {
	for k := range a {
		if !Equal(a[k].values[i], b[k].values[j]) {
			return false
		}
	}
	return true
}
