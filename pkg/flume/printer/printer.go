// Package printer renders tables as aligned text for terminals and text
// files.
package printer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodsign/monday"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sambeau/flume/pkg/flume/table"
)

// Options control rendering.
type Options struct {
	// Color enables ANSI styling of the header and null cells.
	Color bool
	// Locale, when set, formats numbers with grouping separators and dates
	// with localized month names, e.g. "en_GB" or "de".
	Locale string
	// MaxRows limits the rows shown; 0 shows every row.
	MaxRows int
	// Null is the text shown for null cells.
	Null string
	// MaxWidth truncates cells wider than this many columns; 0 never
	// truncates.
	MaxWidth int
}

// Printer renders tables.
type Printer struct {
	opts    Options
	numbers *message.Printer
	dates   monday.Locale
	layout  string
	header  *color.Color
	faint   *color.Color
	rule    *color.Color
}

// New creates a printer. An unknown locale falls back to plain formatting.
func New(opts Options) *Printer {
	p := &Printer{
		opts:   opts,
		header: color.New(color.Bold, color.FgCyan),
		faint:  color.New(color.Faint),
		rule:   color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.header, p.faint, p.rule} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	if opts.Locale != "" {
		if tag, err := language.Parse(strings.ReplaceAll(opts.Locale, "_", "-")); err == nil {
			p.numbers = message.NewPrinter(tag)
			p.dates = mondayLocale(opts.Locale)
			p.layout = dateLayout(p.dates)
		}
	}
	return p
}

// Cell formats one value the way Render shows it, without color.
func (p *Printer) Cell(v table.Value) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = p.opts.Null
	case int64:
		if p.numbers != nil {
			s = p.numbers.Sprintf("%v", number.Decimal(x))
		} else {
			s = table.Format(x)
		}
	case float64:
		switch {
		case table.IsNull(x):
			s = p.opts.Null
		case p.numbers != nil:
			s = p.numbers.Sprintf("%v", number.Decimal(x, number.MaxFractionDigits(6)))
		default:
			s = table.Format(x)
		}
	case time.Time:
		if p.numbers != nil {
			layout := p.layout
			if x.Hour() != 0 || x.Minute() != 0 || x.Second() != 0 {
				layout += " 15:04:05"
			}
			s = monday.Format(x, layout, p.dates)
		} else {
			s = table.Format(x)
		}
	default:
		s = table.Format(v)
	}
	s = strings.ReplaceAll(s, "\n", "\\n")
	if p.opts.MaxWidth > 0 && runewidth.StringWidth(s) > p.opts.MaxWidth {
		s = runewidth.Truncate(s, p.opts.MaxWidth, "…")
	}
	return s
}

func rightAligned(t table.Type) bool {
	return t == table.TypeInt || t == table.TypeFloat
}

// Render writes t as a header, a rule and one line per row. Numeric columns
// are right aligned.
func (p *Printer) Render(w io.Writer, t *table.Table) error {
	if t.Width() == 0 {
		return nil
	}
	rows := t.Len()
	if p.opts.MaxRows > 0 && rows > p.opts.MaxRows {
		rows = p.opts.MaxRows
	}

	cols := t.Columns()
	cells := make([][]string, len(cols))
	widths := make([]int, len(cols))
	for j, col := range cols {
		widths[j] = runewidth.StringWidth(col.Name())
		cells[j] = make([]string, rows)
		for i := 0; i < rows; i++ {
			cells[j][i] = p.Cell(col.At(i))
			widths[j] = max(widths[j], runewidth.StringWidth(cells[j][i]))
		}
	}

	var sb strings.Builder
	line := func(parts []string) {
		sb.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		sb.WriteByte('\n')
	}

	parts := make([]string, len(cols))
	for j, col := range cols {
		parts[j] = p.header.Sprint(pad(col.Name(), widths[j], rightAligned(col.Type())))
	}
	line(parts)
	for j := range cols {
		parts[j] = p.rule.Sprint(strings.Repeat("-", widths[j]))
	}
	line(parts)

	for i := 0; i < rows; i++ {
		for j, col := range cols {
			s := pad(cells[j][i], widths[j], rightAligned(col.Type()))
			if table.IsNull(col.At(i)) {
				s = p.faint.Sprint(s)
			}
			parts[j] = s
		}
		line(parts)
	}
	if rows < t.Len() {
		sb.WriteString(p.faint.Sprintf("… %d more rows\n", t.Len()-rows))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func pad(s string, width int, right bool) string {
	if right {
		return runewidth.FillLeft(s, width)
	}
	return runewidth.FillRight(s, width)
}

// Summary describes a table's shape, e.g. "3 rows × 2 columns".
func Summary(t *table.Table) string {
	rows := "rows"
	if t.Len() == 1 {
		rows = "row"
	}
	cols := "columns"
	if t.Width() == 1 {
		cols = "column"
	}
	return fmt.Sprintf("%d %s × %d %s", t.Len(), rows, t.Width(), cols)
}
