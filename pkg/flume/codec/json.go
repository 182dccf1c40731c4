package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sambeau/flume/pkg/flume/table"
)

// record is a decoded object with its keys in document order. Nested
// objects are flattened into dotted keys.
type record struct {
	keys   []string
	values map[string]table.Value
}

func newRecord() *record {
	return &record{values: map[string]table.Value{}}
}

func (r *record) set(key string, v table.Value) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// rowsBuilder assembles records into a table whose columns appear in the
// order keys were first seen.
type rowsBuilder struct {
	names   []string
	seen    map[string]bool
	records []*record
}

func (b *rowsBuilder) add(r *record) {
	if b.seen == nil {
		b.seen = map[string]bool{}
	}
	for _, k := range r.keys {
		if !b.seen[k] {
			b.seen[k] = true
			b.names = append(b.names, k)
		}
	}
	b.records = append(b.records, r)
}

func (b *rowsBuilder) table() (*table.Table, error) {
	rows := make([][]table.Value, len(b.records))
	for i, r := range b.records {
		row := make([]table.Value, len(b.names))
		for j, name := range b.names {
			row[j] = r.values[name]
		}
		rows[i] = row
	}
	return table.FromRows(b.names, rows)
}

func decodeJSON(r io.Reader) (*table.Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := readJSON(dec, "")
	if errors.Is(err, io.EOF) {
		return table.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the top-level value")
	}

	var b rowsBuilder
	switch x := v.(type) {
	case nil:
		return table.Empty(), nil
	case *record:
		b.add(x)
	case []table.Value:
		for _, item := range x {
			b.add(itemRecord(item))
		}
	default:
		b.add(itemRecord(x))
	}
	return b.table()
}

// itemRecord turns a top-level array element into a row: objects map to
// named columns, arrays to positional ones and scalars to a single _0.
func itemRecord(item table.Value) *record {
	switch x := item.(type) {
	case *record:
		return x
	case []table.Value:
		x = listValue(x)
		r := newRecord()
		for i, name := range positionalNames(len(x)) {
			r.set(name, x[i])
		}
		return r
	}
	r := newRecord()
	r.set("_0", item)
	return r
}

func decodeJSONLines(r io.Reader) (*table.Table, error) {
	var b rowsBuilder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text))
		dec.UseNumber()
		v, err := readJSON(dec, "")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b.add(itemRecord(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(b.records) == 0 {
		return table.Empty(), nil
	}
	return b.table()
}

// readJSON reads one value from the token stream. Objects become records,
// except objects nested inside arrays, which are kept as JSON text.
func readJSON(dec *json.Decoder, prefix string) (table.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch x := tok.(type) {
	case json.Delim:
		switch x {
		case '{':
			r := newRecord()
			if err := readObject(dec, r, prefix); err != nil {
				return nil, err
			}
			return r, nil
		case '[':
			var list []table.Value
			for dec.More() {
				item, err := readJSON(dec, "")
				if err != nil {
					return nil, unexpectedEOF(err)
				}
				list = append(list, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, unexpectedEOF(err)
			}
			if list == nil {
				list = []table.Value{}
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected %v", x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	case string:
		if d, ok := inferDate(x); ok {
			return d, nil
		}
		return x, nil
	default:
		return x, nil // bool or nil
	}
}

func readObject(dec *json.Decoder, r *record, prefix string) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return unexpectedEOF(err)
		}
		key := prefix + tok.(string)
		v, err := readJSON(dec, key+".")
		if err != nil {
			return unexpectedEOF(err)
		}
		switch x := v.(type) {
		case *record:
			for _, k := range x.keys {
				r.set(k, x.values[k])
			}
			if len(x.keys) == 0 {
				r.set(key, nil)
			}
		case []table.Value:
			r.set(key, listValue(x))
		default:
			r.set(key, v)
		}
	}
	_, err := dec.Token()
	return unexpectedEOF(err)
}

// unexpectedEOF reports input that ends inside an object or array.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// listValue converts records nested in a list back into JSON text.
func listValue(list []table.Value) []table.Value {
	for i, item := range list {
		switch x := item.(type) {
		case *record:
			var buf bytes.Buffer
			writeRecordJSON(&buf, x)
			list[i] = buf.String()
		case []table.Value:
			list[i] = listValue(x)
		}
	}
	return list
}

func writeRecordJSON(buf *bytes.Buffer, r *record) {
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONValue(buf, k)
		buf.WriteByte(':')
		v := r.values[k]
		if list, ok := v.([]table.Value); ok {
			v = listValue(list)
		}
		writeJSONValue(buf, v)
	}
	buf.WriteByte('}')
}

func writeJSONValue(buf *bytes.Buffer, v table.Value) {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			return
		}
		b, _ := json.Marshal(x)
		buf.Write(b)
	case time.Time:
		writeJSONValue(buf, table.FormatDate(x))
	case []table.Value:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONValue(buf, e)
		}
		buf.WriteByte(']')
	case string:
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(x)
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
	default:
		b, err := json.Marshal(x)
		if err != nil {
			b, _ = json.Marshal(table.Format(x))
		}
		buf.Write(b)
	}
}

// writeRowJSON writes row i as an object with keys in column order.
func writeRowJSON(buf *bytes.Buffer, t *table.Table, i int) {
	buf.WriteByte('{')
	for j, col := range t.Columns() {
		if j > 0 {
			buf.WriteByte(',')
		}
		writeJSONValue(buf, col.Name())
		buf.WriteByte(':')
		writeJSONValue(buf, col.At(i))
	}
	buf.WriteByte('}')
}

func encodeJSON(w io.Writer, t *table.Table) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		writeRowJSON(&buf, t, i)
	}
	if t.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func encodeJSONLines(w io.Writer, t *table.Table) error {
	var buf bytes.Buffer
	for i := 0; i < t.Len(); i++ {
		writeRowJSON(&buf, t, i)
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}
