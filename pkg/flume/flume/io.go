package flume

import (
	"context"
	"io"

	"github.com/sambeau/flume/pkg/flume/ast"
	"github.com/sambeau/flume/pkg/flume/codec"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/fetch"
	"github.com/sambeau/flume/pkg/flume/printer"
	"github.com/sambeau/flume/pkg/flume/table"
)

// tableIO loads and writes tables through a fetch.Opener and the codecs.
// It is the engine's Loader and Writer.
type tableIO struct {
	opener  *fetch.Opener
	stdout  io.Writer
	format  string
	printer *printer.Printer
}

// formatFor returns the explicit format, or the one the location's
// extension names.
func formatFor(location string, explicit *ast.Format) (ast.Format, error) {
	if explicit != nil {
		return *explicit, nil
	}
	f, ok := codec.Infer(location)
	if !ok {
		return ast.Format{}, ferrors.New("FORMAT-0003", map[string]any{"Location": location})
	}
	return f, nil
}

func (h *tableIO) Load(ctx context.Context, location string, format *ast.Format) (*table.Table, error) {
	f, err := formatFor(location, format)
	if err != nil {
		return nil, err
	}
	rc, err := h.opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return codec.Decode(rc, f)
}

func (h *tableIO) Decode(_ context.Context, text string, format ast.Format) (*table.Table, error) {
	return codec.DecodeString(text, format)
}

// Write encodes t to location. An empty location writes to standard output
// in the configured output format, aligned text by default.
func (h *tableIO) Write(ctx context.Context, t *table.Table, location string, format *ast.Format) error {
	opts := codec.Options{Text: h.printer}
	if location == "" {
		f := ast.Format{Kind: h.format}
		if format != nil {
			f = *format
		}
		return codec.Encode(h.stdout, t, f, opts)
	}

	f, err := formatFor(location, format)
	if err != nil {
		return err
	}
	w, err := h.opener.Create(ctx, location)
	if err != nil {
		return err
	}
	if err := codec.Encode(w, t, f, opts); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return ferrors.Wrap("IO-0002", err, map[string]any{"Location": location})
	}
	return nil
}
