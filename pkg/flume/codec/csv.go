package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// dialect is the resolved set of CSV options.
type dialect struct {
	comma    rune
	lineSep  string
	quote    rune
	noHeader bool
}

func newDialect(f ast.Format) (dialect, error) {
	d := dialect{comma: ',', lineSep: "\n", quote: '"', noHeader: f.NoHeader}
	if f.Kind == TSV {
		d.comma = '\t'
	}
	if f.Delimiter != "" {
		r, err := singleRune("FIELD DELIMITER", f.Delimiter)
		if err != nil {
			return d, err
		}
		d.comma = r
	}
	if f.Quote != "" {
		r, err := singleRune("QUOTE", f.Quote)
		if err != nil {
			return d, err
		}
		d.quote = r
	}
	if f.LineDelimiter != "" {
		d.lineSep = f.LineDelimiter
	}
	if d.comma == d.quote || d.comma == '\n' || d.comma == '\r' {
		return d, ferrors.New("FORMAT-0004", map[string]any{"Option": "FIELD DELIMITER", "Reason": fmt.Sprintf("%q cannot separate fields", d.comma)})
	}
	return d, nil
}

func singleRune(option, s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, ferrors.New("FORMAT-0004", map[string]any{"Option": option, "Reason": fmt.Sprintf("%q must be a single character", s)})
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// swapQuote exchanges the dialect's quote character with '"', which is the
// only quote encoding/csv understands. The swap is its own inverse.
func (d dialect) swapQuote(s string) string {
	if d.quote == '"' {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case d.quote:
			return '"'
		case '"':
			return d.quote
		}
		return r
	}, s)
}

func decodeCSV(r io.Reader, f ast.Format) (*table.Table, error) {
	d, err := newDialect(f)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := d.swapQuote(string(raw))
	if d.lineSep != "\n" && d.lineSep != "\r\n" {
		text = strings.ReplaceAll(text, d.lineSep, "\n")
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = d.comma
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return table.Empty(), nil
	}

	var names []string
	if d.noHeader {
		width := 0
		for _, rec := range records {
			width = max(width, len(rec))
		}
		names = positionalNames(width)
	} else {
		names = make([]string, len(records[0]))
		for i, name := range records[0] {
			names[i] = d.swapQuote(strings.TrimSpace(name))
		}
		records = records[1:]
	}

	rows := make([][]table.Value, len(records))
	for i, rec := range records {
		if len(rec) > len(names) {
			return nil, fmt.Errorf("record %d has %d fields, the header has %d", i+1, len(rec), len(names))
		}
		row := make([]table.Value, len(rec))
		for j, cell := range rec {
			row[j] = inferCell(d.swapQuote(cell))
		}
		rows[i] = row
	}
	return table.FromRows(names, rows)
}

func encodeCSV(w io.Writer, t *table.Table, f ast.Format) error {
	d, err := newDialect(f)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Comma = d.comma
	write := func(record []string) error {
		buf.Reset()
		for i := range record {
			record[i] = d.swapQuote(record[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		line := d.swapQuote(strings.TrimSuffix(buf.String(), "\n"))
		_, err := io.WriteString(w, line+d.lineSep)
		return err
	}

	if !d.noHeader && t.Width() > 0 {
		if err := write(t.Names()); err != nil {
			return err
		}
	}
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		record := make([]string, len(row))
		for j, v := range row {
			record[j] = table.Format(v)
		}
		if err := write(record); err != nil {
			return err
		}
	}
	return nil
}
