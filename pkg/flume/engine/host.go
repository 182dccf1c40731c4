package engine

import (
	"context"

	"github.com/sambeau/flume/pkg/flume/ast"
	"github.com/sambeau/flume/pkg/flume/table"
)

// Logger receives PRINT and HELP output, and trace lines.
type Logger interface {
	Log(values ...any)
	LogLine(values ...any)
}

// Loader loads tables from locations and decodes inline data.
type Loader interface {
	// Load reads the table at location. A nil format is inferred from the
	// location.
	Load(ctx context.Context, location string, format *ast.Format) (*table.Table, error)
	// Decode parses inline text in the given format.
	Decode(ctx context.Context, text string, format ast.Format) (*table.Table, error)
}

// Writer encodes tables to locations. An empty location is standard output.
type Writer interface {
	Write(ctx context.Context, t *table.Table, location string, format *ast.Format) error
}

// DataSource is a connected external source of tables.
type DataSource interface {
	// Query runs a backend-defined query. tableName may be empty when the
	// source knows what to query.
	Query(ctx context.Context, term table.Value, tableName string) (*table.Table, error)
	Close() error
}

// Connector opens data sources for CONNECT. An empty url or kind asks the
// connector to use a configured preset for name.
type Connector interface {
	Connect(ctx context.Context, name, kind, url string) (DataSource, error)
}

// Runner executes other scripts and shell commands.
type Runner interface {
	// Run executes the script at location in a child of parent and returns
	// its final table, or nil when it produced none.
	Run(ctx context.Context, location string, args []table.Value, parent *Env) (*table.Table, error)
	// Shell runs command and decodes its standard output.
	Shell(ctx context.Context, command string, format *ast.Format) (*table.Table, error)
}

// Permissions switch off classes of side-effecting commands.
type Permissions struct {
	Read    bool
	Write   bool
	Connect bool
	Run     bool
}

// AllowAll permits every command.
func AllowAll() Permissions {
	return Permissions{Read: true, Write: true, Connect: true, Run: true}
}

// Host bundles the collaborators an Engine uses for I/O. Nil collaborators
// make the commands that need them fail with an I/O error.
type Host struct {
	Loader      Loader
	Writer      Writer
	Connector   Connector
	Runner      Runner
	Logger      Logger
	Permissions Permissions
}

type nullLogger struct{}

func (nullLogger) Log(...any)     {}
func (nullLogger) LogLine(...any) {}
