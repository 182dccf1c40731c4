package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/benhoyt/goawk/interp"
	"github.com/benhoyt/goawk/parser"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// fieldSep separates output fields; it never occurs in text input.
const fieldSep = "\x1f"

// AWKSource runs AWK programs over a file, or over the files of a
// directory chosen by QUERY's table name.
//
// The URL is a path with optional settings in a query string:
//
//	logs/access.log?FS=%20
//	data/people.csv?header=false
//
// .csv and .tsv files are read as CSV with a header row, whose names become
// the result's column names. Other files are split on FS (default: runs of
// blanks) and give columns _0, _1, ….
type AWKSource struct {
	path   string
	fs     string
	header bool
	isDir  bool
}

// OpenAWK opens an AWK source.
func OpenAWK(url string) (*AWKSource, error) {
	path, query, _ := strings.Cut(url, "?")
	path = strings.TrimPrefix(path, "file://")
	info, err := os.Stat(path)
	if err != nil {
		return nil, ferrors.Wrap("DB-0001", err, map[string]any{"Source": url})
	}
	s := &AWKSource{path: path, header: true, isDir: info.IsDir()}
	for _, kv := range strings.Split(query, "&") {
		if kv == "" {
			continue
		}
		key, value, _ := strings.Cut(kv, "=")
		value = unescape(value)
		switch strings.ToLower(key) {
		case "fs":
			s.fs = value
		case "header":
			s.header = value != "false" && value != "0" && value != "no"
		default:
			return nil, ferrors.Wrap("DB-0001", fmt.Errorf("unknown option %q", key), map[string]any{"Source": url})
		}
	}
	return s, nil
}

func unescape(s string) string {
	r := strings.NewReplacer("%20", " ", "%09", "\t", "%2C", ",", "%2c", ",", "%7C", "|", "%7c", "|", `\t`, "\t")
	return r.Replace(s)
}

// Program builds the AWK program for a QUERY term. A term containing a
// brace is a complete program; otherwise it is a pattern selecting the
// lines to return, and "*" or an empty term selects every line.
func Program(term table.Value) string {
	t := ""
	if !table.IsNull(term) {
		t = strings.TrimSpace(table.Format(term))
	}
	switch {
	case strings.Contains(t, "{"):
		return t
	case t == "" || t == "*":
		return "{ $1 = $1; print }"
	default:
		return "(" + t + ") { $1 = $1; print }"
	}
}

// Query runs the program for term over the source's file.
func (s *AWKSource) Query(ctx context.Context, term table.Value, tableName string) (*table.Table, error) {
	file, err := s.resolve(tableName)
	if err != nil {
		return nil, err
	}
	prog, err := parser.ParseProgram([]byte(Program(term)), nil)
	if err != nil {
		return nil, ferrors.Wrap("DB-0002", err, nil)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, ferrors.Wrap("DB-0002", err, nil)
	}
	defer f.Close()

	config := &interp.Config{
		Stdin:        f,
		NoExec:       true,
		NoFileWrites: true,
		NoFileReads:  true,
		Vars:         []string{"OFS", fieldSep},
	}
	var names []string
	switch mode := fileMode(file); {
	case mode != interp.DefaultMode:
		sep := ','
		if mode == interp.TSVMode {
			sep = '\t'
		}
		config.InputMode = mode
		config.CSVInput = interp.CSVInputConfig{Header: s.header}
		if s.header {
			if names, err = readHeader(f, sep); err != nil {
				return nil, ferrors.Wrap("DB-0002", err, nil)
			}
		}
	case s.fs != "":
		config.Vars = append(config.Vars, "FS", s.fs)
	}

	var out, stderr bytes.Buffer
	config.Output = &out
	config.Error = &stderr
	interpreter, err := interp.New(prog)
	if err != nil {
		return nil, ferrors.Wrap("DB-0002", err, nil)
	}
	if _, err := interpreter.ExecuteContext(ctx, config); err != nil {
		if ctx.Err() != nil {
			return nil, ferrors.Wrap("CANCEL-0001", ctx.Err(), nil)
		}
		return nil, ferrors.Wrap("DB-0002", err, nil)
	}
	return outputTable(out.String(), names)
}

// resolve picks the file to read: the source itself, or the directory
// entry named by tableName, with or without an extension.
func (s *AWKSource) resolve(tableName string) (string, error) {
	if !s.isDir {
		if tableName != "" {
			return "", ferrors.New("DB-0004", map[string]any{"Name": tableName})
		}
		return s.path, nil
	}
	if tableName == "" || strings.ContainsAny(tableName, `/\`) || strings.HasPrefix(tableName, ".") {
		return "", ferrors.New("DB-0004", map[string]any{"Name": tableName})
	}
	exact := filepath.Join(s.path, tableName)
	if info, err := os.Stat(exact); err == nil && !info.IsDir() {
		return exact, nil
	}
	matches, _ := filepath.Glob(filepath.Join(s.path, tableName+".*"))
	if len(matches) == 0 {
		return "", ferrors.Wrap("DB-0002", fmt.Errorf("no file %q in %s", tableName, s.path), nil)
	}
	return matches[0], nil
}

func fileMode(file string) interp.IOMode {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return interp.CSVMode
	case ".tsv":
		return interp.TSVMode
	}
	return interp.DefaultMode
}

// readHeader reads the header row and rewinds f.
func readHeader(f *os.File, sep rune) ([]string, error) {
	r := csv.NewReader(f)
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	names, err := r.Read()
	if errors.Is(err, io.EOF) {
		names, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return names, nil
}

// outputTable splits the program's output into rows of fields. The header
// names are used when every row has exactly that many fields.
func outputTable(out string, header []string) (*table.Table, error) {
	out = strings.TrimSuffix(out, "\n")
	if out == "" {
		if len(header) > 0 {
			return table.FromRows(header, nil)
		}
		return table.Empty(), nil
	}
	lines := strings.Split(out, "\n")
	rows := make([][]table.Value, len(lines))
	width := 0
	for i, line := range lines {
		fields := strings.Split(line, fieldSep)
		row := make([]table.Value, len(fields))
		for j, field := range fields {
			row[j] = table.Infer(field)
		}
		rows[i] = row
		width = max(width, len(fields))
	}

	names := header
	for _, row := range rows {
		if len(row) != len(header) {
			names = nil
			break
		}
	}
	if names == nil {
		names = make([]string, width)
		for i := range names {
			names[i] = fmt.Sprintf("_%d", i)
		}
	}
	return table.FromRows(names, rows)
}
