package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/flume/pkg/flume/codec"
)

// errNoConfig is returned by resolveConfigPath when no file was named and
// none exists in the default locations.
var errNoConfig = errors.New("no config file found")

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations and falls back to
// Defaults when there is no file.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if errors.Is(err, errNoConfig) {
		cfg := Defaults()
		cfg.expandHome()
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Path = absPath
	cfg.BaseDir = filepath.Dir(absPath)
	cfg.expandHome()

	// Relative file paths in presets are relative to the config file.
	for name, src := range cfg.Sources {
		src.URL = resolveSourceURL(src.URL, cfg.BaseDir)
		cfg.Sources[name] = src
	}
	for _, p := range []*string{&cfg.SFTP.KnownHosts, &cfg.SFTP.IdentityFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(cfg.BaseDir, *p)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are reported
// together.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Engine.Workers < 1 {
		errs = append(errs, fmt.Sprintf("engine.workers: %d (must be at least 1)", cfg.Engine.Workers))
	}
	if cfg.Engine.Shell == "" {
		errs = append(errs, "engine.shell: must not be empty")
	}

	switch cfg.Output.Color {
	case "auto", "always", "never":
	default:
		errs = append(errs, fmt.Sprintf("output.color: invalid value %q (must be auto, always or never)", cfg.Output.Color))
	}
	if cfg.Output.MaxRows < 0 {
		errs = append(errs, fmt.Sprintf("output.max_rows: %d (must not be negative)", cfg.Output.MaxRows))
	}
	if cfg.Output.MaxWidth < 0 {
		errs = append(errs, fmt.Sprintf("output.max_width: %d (must not be negative)", cfg.Output.MaxWidth))
	}
	if !slices.Contains(codec.Kinds(), strings.ToUpper(cfg.Output.Format)) {
		errs = append(errs, fmt.Sprintf("output.format: unknown format %q (must be one of %s)",
			cfg.Output.Format, strings.Join(codec.Kinds(), ", ")))
	}

	names := make([]string, 0, len(cfg.Sources))
	for name := range cfg.Sources {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		src := cfg.Sources[name]
		if src.URL == "" {
			errs = append(errs, fmt.Sprintf("sources.%s: url is required", name))
		}
		switch strings.ToUpper(src.Kind) {
		case "", "SQL", "SQLITE", "POSTGRES", "POSTGRESQL", "MYSQL", "AWK":
		default:
			errs = append(errs, fmt.Sprintf("sources.%s: unknown kind %q", name, src.Kind))
		}
	}

	if cfg.HTTP.Timeout < 0 {
		errs = append(errs, "http.timeout: must not be negative")
	}
	if cfg.SFTP.Timeout < 0 {
		errs = append(errs, "sftp.timeout: must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings returns non-fatal configuration issues that should be reported to the user.
func Warnings(cfg *Config) []string {
	var warnings []string
	if cfg.SFTP.InsecureIgnoreHostKey {
		warnings = append(warnings, "sftp: insecure_ignore_host_key is set - server identities are not verified")
	}
	if cfg.Security.AllowRun && !cfg.Security.AllowRead {
		warnings = append(warnings, "security: allow_run without allow_read - SH and RUN can still read files")
	}
	return warnings
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > FLUME_CONFIG env > ./flume.yaml > ~/.config/flume/flume.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("FLUME_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("FLUME_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("flume.yaml"); err == nil {
		return "flume.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "flume", "flume.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", errNoConfig
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// resolveSourceURL makes relative sqlite and plain file paths absolute.
// Network URLs and in-memory databases are returned unchanged.
func resolveSourceURL(url, baseDir string) string {
	for _, scheme := range []string{"sqlite3:", "sqlite:"} {
		if !strings.HasPrefix(url, scheme) {
			continue
		}
		rest := strings.TrimPrefix(url[len(scheme):], "//")
		if rest == "" || strings.HasPrefix(rest, ":memory:") || filepath.IsAbs(rest) {
			return url
		}
		return scheme + filepath.Join(baseDir, rest)
	}
	if url == "" || strings.Contains(url, ":") || filepath.IsAbs(url) {
		return url
	}
	return filepath.Join(baseDir, url)
}

// expandHome replaces a leading ~ in user-facing paths.
func (cfg *Config) expandHome() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, p := range []*string{&cfg.REPL.HistoryFile, &cfg.SFTP.KnownHosts, &cfg.SFTP.IdentityFile} {
		if *p == "~" {
			*p = home
		} else if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
}
