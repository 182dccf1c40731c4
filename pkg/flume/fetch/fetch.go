// Package fetch opens the locations READ and WRITE name: local files,
// standard input and output ("-"), HTTP(S) URLs and sftp:// URLs. Streams
// are decompressed or compressed according to the location's extension.
package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
)

// Stdio is the location naming standard input or output.
const Stdio = "-"

// Options configure an Opener.
type Options struct {
	// HTTPTimeout bounds a whole HTTP request; zero means 30 seconds.
	HTTPTimeout time.Duration
	// UserAgent is sent with HTTP requests.
	UserAgent string

	// KnownHosts is the known_hosts file used to verify SFTP servers;
	// empty means ~/.ssh/known_hosts.
	KnownHosts string
	// InsecureIgnoreHostKey skips SFTP host key verification.
	InsecureIgnoreHostKey bool
	// IdentityFile is the private key for SFTP; empty tries the usual
	// ~/.ssh keys.
	IdentityFile string
	// SFTPTimeout bounds connecting to an SFTP server; zero means 30
	// seconds.
	SFTPTimeout time.Duration

	Stdin  io.Reader
	Stdout io.Writer
}

// Opener opens locations for reading and writing. Remote connections are
// cached until Close.
type Opener struct {
	opts Options
	http *httpFetcher
	sftp *sftpDialer
}

// New creates an Opener.
func New(opts Options) *Opener {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	if opts.SFTPTimeout <= 0 {
		opts.SFTPTimeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "flume"
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &Opener{
		opts: opts,
		http: newHTTPFetcher(opts),
		sftp: newSFTPDialer(opts),
	}
}

// Scheme returns the lower-cased URL scheme of a location, or "" for plain
// paths.
func Scheme(location string) string {
	scheme, _, found := strings.Cut(location, "://")
	if !found || scheme == "" || strings.ContainsAny(scheme, "/\\") {
		return ""
	}
	return strings.ToLower(scheme)
}

// IsRemote reports whether location is fetched over the network.
func IsRemote(location string) bool {
	switch Scheme(location) {
	case "http", "https", "sftp":
		return true
	}
	return false
}

// Open returns the decompressed contents of location.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	rc, err := o.open(ctx, location)
	if err != nil {
		if _, ok := ferrors.As(err); ok {
			return nil, err
		}
		return nil, openError(location, err)
	}
	rc, err = decompress(rc, CompressionOf(location))
	if err != nil {
		return nil, openError(location, err)
	}
	return rc, nil
}

func (o *Opener) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == Stdio {
		return io.NopCloser(o.opts.Stdin), nil
	}
	switch scheme := Scheme(location); scheme {
	case "":
		return os.Open(location)
	case "file":
		p, err := filePath(location)
		if err != nil {
			return nil, err
		}
		return os.Open(p)
	case "http", "https":
		return o.http.get(ctx, location)
	case "sftp":
		return o.sftp.open(ctx, location)
	default:
		return nil, ferrors.New("IO-0003", map[string]any{"Scheme": scheme})
	}
}

// Create returns a writer for location. Data is compressed according to the
// location's extension and is complete once the writer is closed.
func (o *Opener) Create(ctx context.Context, location string) (io.WriteCloser, error) {
	wc, err := o.create(ctx, location)
	if err != nil {
		if _, ok := ferrors.As(err); ok {
			return nil, err
		}
		return nil, writeError(location, err)
	}
	wc, err = compress(wc, CompressionOf(location))
	if err != nil {
		return nil, writeError(location, err)
	}
	return wc, nil
}

func (o *Opener) create(ctx context.Context, location string) (io.WriteCloser, error) {
	if location == Stdio {
		return nopWriteCloser{o.opts.Stdout}, nil
	}
	switch scheme := Scheme(location); scheme {
	case "":
		return os.Create(location)
	case "file":
		p, err := filePath(location)
		if err != nil {
			return nil, err
		}
		return os.Create(p)
	case "sftp":
		return o.sftp.create(ctx, location)
	default:
		return nil, ferrors.New("IO-0003", map[string]any{"Scheme": scheme})
	}
}

// ReadAll reads the whole decompressed contents of location.
func (o *Opener) ReadAll(ctx context.Context, location string) ([]byte, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, openError(location, err)
	}
	return data, nil
}

// Close drops cached remote connections.
func (o *Opener) Close() error {
	return o.sftp.close()
}

func filePath(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

func openError(location string, err error) error {
	return ferrors.Wrap("IO-0001", err, map[string]any{"Location": redact(location)})
}

func writeError(location string, err error) error {
	return ferrors.Wrap("IO-0002", err, map[string]any{"Location": redact(location)})
}

// redact hides a password in a URL's user info.
func redact(location string) string {
	if Scheme(location) == "" {
		return location
	}
	u, err := url.Parse(location)
	if err != nil || u.User == nil {
		return location
	}
	return u.Redacted()
}
