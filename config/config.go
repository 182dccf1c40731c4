// Package config loads Flume's YAML configuration.
package config

import "time"

// Config represents the complete Flume configuration
type Config struct {
	BaseDir  string                  `yaml:"-"` // Directory containing config file, for resolving relative paths
	Path     string                  `yaml:"-"` // Absolute path of the loaded file; empty when running on defaults
	Engine   EngineConfig            `yaml:"engine"`
	Security SecurityConfig          `yaml:"security"`
	Output   OutputConfig            `yaml:"output"`
	Sources  map[string]SourceConfig `yaml:"sources"` // Presets for CONNECT name without TO
	HTTP     HTTPConfig              `yaml:"http"`
	SFTP     SFTPConfig              `yaml:"sftp"`
	REPL     REPLConfig              `yaml:"repl"`
}

// EngineConfig holds execution settings
type EngineConfig struct {
	Workers int    `yaml:"workers"` // Parallel invocations of READ, QUERY and SH (default: 4)
	Trace   bool   `yaml:"trace"`   // Log one line per statement to stderr
	Shell   string `yaml:"shell"`   // Shell used by SH (default: "sh")
}

// SecurityConfig switches off classes of side-effecting commands
type SecurityConfig struct {
	AllowRead    bool `yaml:"allow_read"`
	AllowWrite   bool `yaml:"allow_write"`
	AllowConnect bool `yaml:"allow_connect"`
	AllowRun     bool `yaml:"allow_run"` // RUN and SH
}

// OutputConfig controls how tables are shown on the terminal
type OutputConfig struct {
	Color    string `yaml:"color"`     // auto, always or never (default: auto)
	Locale   string `yaml:"locale"`    // e.g. "en_GB"; empty prints plain numbers and ISO dates
	MaxRows  int    `yaml:"max_rows"`  // Rows shown before a "… N more rows" footer; 0 shows all
	MaxWidth int    `yaml:"max_width"` // Cell width before truncation; 0 never truncates
	Null     string `yaml:"null"`      // Text for null cells
	Format   string `yaml:"format"`    // Format of unnamed WRITEs and the final table (default: TEXT)
}

// SourceConfig is a named data source preset
type SourceConfig struct {
	Kind string `yaml:"kind"` // SQL or AWK; inferred from the URL when empty
	URL  string `yaml:"url"`
}

// HTTPConfig holds settings for http:// and https:// locations
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// SFTPConfig holds settings for sftp:// locations
type SFTPConfig struct {
	KnownHosts            string        `yaml:"known_hosts"`   // Default: ~/.ssh/known_hosts
	IdentityFile          string        `yaml:"identity_file"` // Default: the usual ~/.ssh keys
	Timeout               time.Duration `yaml:"timeout"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"`
}

// REPLConfig holds interactive shell settings
type REPLConfig struct {
	HistoryFile string `yaml:"history_file"` // Empty disables history
	Prompt      string `yaml:"prompt"`
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers: 4,
			Shell:   "sh",
		},
		Security: SecurityConfig{
			AllowRead:    true,
			AllowWrite:   true,
			AllowConnect: true,
			AllowRun:     true,
		},
		Output: OutputConfig{
			Color:   "auto",
			MaxRows: 1000,
			Format:  "TEXT",
		},
		Sources: map[string]SourceConfig{},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "flume",
		},
		SFTP: SFTPConfig{
			Timeout: 30 * time.Second,
		},
		REPL: REPLConfig{
			HistoryFile: "~/.flume_history",
			Prompt:      "flume> ",
		},
	}
}
