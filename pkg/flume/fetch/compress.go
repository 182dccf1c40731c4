package fetch

import (
	"compress/bzip2"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compression names a stream compression recognised by file extension.
type Compression string

const (
	None  Compression = ""
	Gzip  Compression = "gzip"
	Zstd  Compression = "zstd"
	S2    Compression = "s2"
	Bzip2 Compression = "bzip2"
)

var compressionExts = map[string]Compression{
	".gz":   Gzip,
	".gzip": Gzip,
	".zst":  Zstd,
	".zstd": Zstd,
	".s2":   S2,
	".bz2":  Bzip2,
}

// CompressionOf returns the compression named by the last extension of a
// location's path.
func CompressionOf(location string) Compression {
	p := location
	if i := strings.IndexAny(p, "?#"); i >= 0 && strings.Contains(p, "://") {
		p = p[:i]
	}
	return compressionExts[strings.ToLower(path.Ext(p))]
}

var errBzip2Write = errors.New("bzip2 output is not supported; use .gz or .zst")

// decompress wraps rc so reads return decompressed bytes. Closing the result
// closes rc.
func decompress(rc io.ReadCloser, c Compression) (io.ReadCloser, error) {
	switch c {
	case Gzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &readCloser{Reader: zr, closers: []func() error{zr.Close, rc.Close}}, nil
	case Zstd:
		zr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &readCloser{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			rc.Close,
		}}, nil
	case S2:
		return &readCloser{Reader: s2.NewReader(rc), closers: []func() error{rc.Close}}, nil
	case Bzip2:
		return &readCloser{Reader: bzip2.NewReader(rc), closers: []func() error{rc.Close}}, nil
	}
	return rc, nil
}

// compress wraps wc so writes are compressed. Closing the result flushes the
// compressor, then closes wc.
func compress(wc io.WriteCloser, c Compression) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		zw := gzip.NewWriter(wc)
		return &writeCloser{Writer: zw, closers: []func() error{zw.Close, wc.Close}}, nil
	case Zstd:
		zw, err := zstd.NewWriter(wc)
		if err != nil {
			wc.Close()
			return nil, err
		}
		return &writeCloser{Writer: zw, closers: []func() error{zw.Close, wc.Close}}, nil
	case S2:
		zw := s2.NewWriter(wc)
		return &writeCloser{Writer: zw, closers: []func() error{zw.Close, wc.Close}}, nil
	case Bzip2:
		wc.Close()
		return nil, errBzip2Write
	}
	return wc, nil
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	return closeAll(r.closers)
}

type writeCloser struct {
	io.Writer
	closers []func() error
}

func (w *writeCloser) Close() error {
	return closeAll(w.closers)
}

// closeAll runs every closer and returns the first error.
func closeAll(closers []func() error) error {
	var first error
	for _, c := range closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
