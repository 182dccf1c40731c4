package codec

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sambeau/flume/pkg/flume/table"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// decodeMarkdown reads the first GFM table in a Markdown document.
func decodeMarkdown(r io.Reader) (*table.Table, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := markdown.Parser().Parse(text.NewReader(source))

	var found *extast.Table
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if t, ok := n.(*extast.Table); ok && entering {
			found = t
			return gmast.WalkStop, nil
		}
		return gmast.WalkContinue, nil
	})
	if found == nil {
		return table.Empty(), nil
	}

	var names []string
	var rows [][]table.Value
	for n := found.FirstChild(); n != nil; n = n.NextSibling() {
		switch n.(type) {
		case *extast.TableHeader:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				names = append(names, cellText(c, source))
			}
		case *extast.TableRow:
			var row []table.Value
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				row = append(row, inferCell(cellText(c, source)))
			}
			rows = append(rows, row)
		}
	}
	return table.FromRows(names, rows)
}

func cellText(cell gmast.Node, source []byte) string {
	var sb strings.Builder
	_ = gmast.Walk(cell, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch x := n.(type) {
		case *gmast.Text:
			sb.Write(x.Segment.Value(source))
			if x.SoftLineBreak() || x.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *gmast.String:
			sb.Write(x.Value)
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// encodeMarkdown writes a GFM table. Numeric columns are right aligned.
// With escapeAll every ASCII punctuation character is escaped, so cell text
// is never read as inline Markdown.
func encodeMarkdown(w io.Writer, t *table.Table, escapeAll bool) error {
	if t.Width() == 0 {
		return nil
	}
	var buf bytes.Buffer
	cols := t.Columns()

	buf.WriteByte('|')
	for _, col := range cols {
		buf.WriteString(" " + markdownCell(col.Name(), escapeAll) + " |")
	}
	buf.WriteString("\n|")
	for _, col := range cols {
		switch col.Type() {
		case table.TypeInt, table.TypeFloat:
			buf.WriteString(" ---: |")
		default:
			buf.WriteString(" --- |")
		}
	}
	buf.WriteByte('\n')

	for i := 0; i < t.Len(); i++ {
		buf.WriteByte('|')
		for _, col := range cols {
			buf.WriteString(" " + markdownCell(table.Format(col.At(i)), escapeAll) + " |")
		}
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func markdownCell(s string, escapeAll bool) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\n':
			sb.WriteByte(' ')
		case r == '|':
			sb.WriteString(`\|`)
		case escapeAll && r < 128 && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{}~", r):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// encodeHTML renders the table through the Markdown converter.
func encodeHTML(w io.Writer, t *table.Table) error {
	var md bytes.Buffer
	if err := encodeMarkdown(&md, t, true); err != nil {
		return err
	}
	return markdown.Convert(md.Bytes(), w)
}
