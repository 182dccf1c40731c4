package codec

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/flume/pkg/flume/table"
)

func decodeYAML(r io.Reader) (*table.Table, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return table.Empty(), nil
		}
		return nil, err
	}
	if len(doc.Content) == 0 {
		return table.Empty(), nil
	}
	root := doc.Content[0]

	var b rowsBuilder
	switch root.Kind {
	case yaml.SequenceNode:
		for _, item := range root.Content {
			v, err := yamlValue(item, "")
			if err != nil {
				return nil, err
			}
			b.add(itemRecord(v))
		}
	case yaml.MappingNode:
		v, err := yamlValue(root, "")
		if err != nil {
			return nil, err
		}
		b.add(v.(*record))
	default:
		v, err := yamlValue(root, "")
		if err != nil {
			return nil, err
		}
		if v == nil {
			return table.Empty(), nil
		}
		b.add(itemRecord(v))
	}
	return b.table()
}

// yamlValue converts a node the same way readJSON converts JSON: mappings
// become flattened records and sequences become lists.
func yamlValue(n *yaml.Node, prefix string) (table.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlValue(n.Alias, prefix)
	case yaml.MappingNode:
		r := newRecord()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := prefix + n.Content[i].Value
			v, err := yamlValue(n.Content[i+1], key+".")
			if err != nil {
				return nil, err
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
		return r, nil
	case yaml.SequenceNode:
		list := make([]table.Value, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := yamlValue(item, "")
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		if s, ok := v.(string); ok {
			if d, ok := inferDate(s); ok {
				return d, nil
			}
		}
		return table.Normalize(v), nil
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

func encodeYAML(w io.Writer, t *table.Table) error {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for i := 0; i < t.Len(); i++ {
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, col := range t.Columns() {
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: col.Name()},
				yamlNode(col.At(i)),
			)
		}
		seq.Content = append(seq.Content, m)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return err
	}
	return enc.Close()
}

func yamlNode(v table.Value) *yaml.Node {
	scalar := func(tag, value string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	}
	switch x := v.(type) {
	case nil:
		return scalar("!!null", "null")
	case bool:
		return scalar("!!bool", strconv.FormatBool(x))
	case int64:
		return scalar("!!int", strconv.FormatInt(x, 10))
	case float64:
		switch {
		case math.IsNaN(x):
			return scalar("!!null", "null")
		case math.IsInf(x, 1):
			return scalar("!!float", ".inf")
		case math.IsInf(x, -1):
			return scalar("!!float", "-.inf")
		}
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return scalar("!!float", s)
	case time.Time:
		return scalar("!!timestamp", table.FormatDate(x))
	case []table.Value:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, e := range x {
			seq.Content = append(seq.Content, yamlNode(e))
		}
		return seq
	}
	return scalar("!!str", table.Format(v))
}
