// Package source implements the data sources CONNECT opens and QUERY reads:
// SQL databases (sqlite, postgres, mysql) and AWK programs over local files.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sambeau/flume/pkg/flume/conncache"
	"github.com/sambeau/flume/pkg/flume/engine"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
)

// Source kinds.
const (
	KindSQL = "SQL"
	KindAWK = "AWK"
)

// Preset is a named connection from configuration, used by a CONNECT that
// names no URL.
type Preset struct {
	Kind string
	URL  string
}

// Options configure a Connector.
type Options struct {
	Presets map[string]Preset
	// MaxOpenConns limits each database pool; zero leaves the driver
	// default.
	MaxOpenConns int
	// OnError receives errors from closing cached connections.
	OnError func(key string, err error)
}

// Connector opens data sources. Database handles are shared between
// sources with the same URL and closed by Close.
type Connector struct {
	opts Options
	dbs  *conncache.Cache[*sql.DB]
}

var _ engine.Connector = (*Connector)(nil)

// NewConnector creates a Connector.
func NewConnector(opts Options) *Connector {
	return &Connector{
		opts: opts,
		dbs: conncache.New(conncache.Options[*sql.DB]{
			MaxSize: 32,
			TTL:     30 * time.Minute,
			Health: func(db *sql.DB) error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return db.PingContext(ctx)
			},
			Close:   func(db *sql.DB) error { return db.Close() },
			OnError: opts.OnError,
		}),
	}
}

// Connect opens the source name. An empty url takes kind and url from the
// preset of the same name; an empty kind is inferred from the url.
func (c *Connector) Connect(ctx context.Context, name, kind, url string) (engine.DataSource, error) {
	if url == "" {
		preset, ok := c.opts.Presets[name]
		if !ok {
			return nil, ferrors.Wrap("DB-0001", fmt.Errorf("no source named %q is configured", name), map[string]any{"Source": name})
		}
		url = preset.URL
		if kind == "" {
			kind = preset.Kind
		}
	}
	kind = strings.ToUpper(kind)
	if kind == "" {
		kind = InferKind(url)
	}

	switch kind {
	case KindSQL, "SQLITE", "POSTGRES", "POSTGRESQL", "MYSQL":
		src, err := c.connectSQL(ctx, url)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindAWK:
		src, err := OpenAWK(url)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, ferrors.New("DB-0003", map[string]any{"Kind": kind})
	}
}

// InferKind guesses a source kind from its URL: database URLs are SQL,
// anything else is a file for AWK.
func InferKind(url string) string {
	if _, _, err := driverFor(url); err == nil {
		return KindSQL
	}
	return KindAWK
}

// Close closes every shared database handle.
func (c *Connector) Close() error {
	return c.dbs.Close()
}
