// Package codec converts tables to and from their text encodings: CSV, TSV,
// JSON, JSON Lines, YAML, Markdown, HTML and aligned text.
package codec

import (
	"bytes"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// Format kinds.
const (
	CSV      = "CSV"
	TSV      = "TSV"
	JSON     = "JSON"
	JSONL    = "JSONL"
	YAML     = "YAML"
	Markdown = "MARKDOWN"
	HTML     = "HTML"
	Text     = "TEXT"
)

// Kinds lists every format kind.
func Kinds() []string {
	return []string{CSV, TSV, JSON, JSONL, YAML, Markdown, HTML, Text}
}

var extensions = map[string]string{
	"csv":      CSV,
	"tsv":      TSV,
	"tab":      TSV,
	"vcf":      TSV,
	"bed":      TSV,
	"json":     JSON,
	"jsonl":    JSONL,
	"ndjson":   JSONL,
	"yaml":     YAML,
	"yml":      YAML,
	"md":       Markdown,
	"markdown": Markdown,
	"html":     HTML,
	"htm":      HTML,
	"txt":      Text,
	"text":     Text,
	"log":      Text,
}

// Infer returns the format named by a location's file extension. Unknown
// extensions, such as a trailing .gz, are skipped, so "data.csv.gz" is CSV.
func Infer(location string) (ast.Format, bool) {
	p := location
	if strings.Contains(location, "://") {
		if u, err := url.Parse(location); err == nil {
			p = u.Path
		}
	}
	p = path.Base(p)
	for strings.Contains(p, ".") {
		ext := path.Ext(p)
		p = strings.TrimSuffix(p, ext)
		if kind, ok := extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
			return ast.Format{Kind: kind}, true
		}
	}
	return ast.Format{}, false
}

// Decode reads a table encoded in format f.
func Decode(r io.Reader, f ast.Format) (*table.Table, error) {
	var (
		t   *table.Table
		err error
	)
	switch f.Kind {
	case CSV, TSV:
		t, err = decodeCSV(r, f)
	case JSON:
		t, err = decodeJSON(r)
	case JSONL:
		t, err = decodeJSONLines(r)
	case YAML:
		t, err = decodeYAML(r)
	case Markdown:
		t, err = decodeMarkdown(r)
	case Text:
		t, err = decodeText(r, f)
	case HTML:
		return nil, ferrors.New("FORMAT-0005", map[string]any{"Format": f.Kind})
	default:
		return nil, ferrors.New("PARSE-0006", map[string]any{"Format": f.Kind})
	}
	if err != nil {
		if _, ok := ferrors.As(err); ok {
			return nil, err
		}
		return nil, ferrors.Wrap("FORMAT-0001", err, map[string]any{"Format": f.Kind})
	}
	return t, nil
}

// DecodeString decodes inline table text.
func DecodeString(text string, f ast.Format) (*table.Table, error) {
	return Decode(strings.NewReader(text), f)
}

// Options control how Encode renders values that have no native encoding.
type Options struct {
	// Text is used for TEXT output; the zero value renders plain text.
	Text TextRenderer
}

// TextRenderer renders a table for a terminal or text file.
type TextRenderer interface {
	Render(w io.Writer, t *table.Table) error
}

// Encode writes t in format f.
func Encode(w io.Writer, t *table.Table, f ast.Format, opts Options) error {
	var err error
	switch f.Kind {
	case CSV, TSV:
		err = encodeCSV(w, t, f)
	case JSON:
		err = encodeJSON(w, t)
	case JSONL:
		err = encodeJSONLines(w, t)
	case YAML:
		err = encodeYAML(w, t)
	case Markdown:
		err = encodeMarkdown(w, t, false)
	case HTML:
		err = encodeHTML(w, t)
	case Text:
		err = encodeText(w, t, opts.Text)
	default:
		return ferrors.New("PARSE-0006", map[string]any{"Format": f.Kind})
	}
	if err != nil {
		if _, ok := ferrors.As(err); ok {
			return err
		}
		return ferrors.Wrap("FORMAT-0002", err, map[string]any{"Format": f.Kind})
	}
	return nil
}

// EncodeString encodes t to a string.
func EncodeString(t *table.Table, f ast.Format, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, t, f, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// positionalNames names header-less columns _0, _1, ….
func positionalNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "_" + strconv.Itoa(i)
	}
	return names
}

// inferCell converts a text cell into the most specific value it spells:
// null, a number, a boolean, an ISO date, or the string itself.
func inferCell(s string) table.Value {
	v := table.Infer(s)
	if str, ok := v.(string); ok {
		if d, ok := inferDate(str); ok {
			return d
		}
	}
	return v
}

// inferDate accepts only ISO-style dates (2024-01-31, 2024-01-31T10:00:00Z)
// so that ordinary text is never mistaken for a date.
func inferDate(s string) (time.Time, bool) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' || !isDigits(s[:4]) {
		return time.Time{}, false
	}
	d, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
