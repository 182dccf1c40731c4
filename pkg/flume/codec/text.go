package codec

import (
	"bufio"
	"io"
	"strings"

	"github.com/sambeau/flume/pkg/flume/ast"
	"github.com/sambeau/flume/pkg/flume/printer"
	"github.com/sambeau/flume/pkg/flume/table"
)

// decodeText reads one row per line into a single column, _0. Lines are
// kept verbatim; TEXT never infers types.
func decodeText(r io.Reader, f ast.Format) (*table.Table, error) {
	sep := f.LineDelimiter
	if sep == "" {
		sep = "\n"
	}
	var lines []table.Value
	if sep == "\n" {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
		for scanner.Scan() {
			lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	} else {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(strings.TrimSuffix(string(raw), sep), sep) {
			lines = append(lines, line)
		}
		if len(raw) == 0 {
			lines = nil
		}
	}
	if len(lines) == 0 {
		return table.Empty(), nil
	}
	return table.New(table.NewColumn("_0", lines))
}

func encodeText(w io.Writer, t *table.Table, r TextRenderer) error {
	if r == nil {
		r = printer.New(printer.Options{})
	}
	return r.Render(w, t)
}
