// Package config loads and validates the tablesrv configuration.
//
// Values are resolved in three layers: built-in defaults, an optional TOML
// file, then environment variables. Command-line flags are applied by the
// caller on top of the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/arllen133/tablestore"
)

// Duration is a time.Duration that reads and writes as a string such as "5s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	StaticDir       string   `toml:"static_dir"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
}

// DatabaseConfig selects the store and tunes the session.
type DatabaseConfig struct {
	Driver             string   `toml:"driver"`
	DSN                string   `toml:"dsn"`
	StatementTimeout   Duration `toml:"statement_timeout"`
	SlowQueryThreshold Duration `toml:"slow_query_threshold"`
	LogQueries         bool     `toml:"log_queries"`
	Tracing            bool     `toml:"tracing"`
	Metrics            bool     `toml:"metrics"`
	Seed               bool     `toml:"seed"`
	// ColumnPolicy is "lenient" or "strict".
	ColumnPolicy string `toml:"column_policy"`
}

// Policy returns the row store column policy named by ColumnPolicy.
func (c DatabaseConfig) Policy() tablestore.ColumnPolicy {
	if strings.EqualFold(c.ColumnPolicy, "strict") {
		return tablestore.ColumnPolicyStrict
	}
	return tablestore.ColumnPolicyLenient
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// SlogLevel parses Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// MailConfig holds the outbound SMTP settings.
type MailConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	Server   string `toml:"server"`
	Port     int    `toml:"port"`
}

// Config mirrors the tablesrv TOML schema.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Mail     MailConfig     `toml:"mail"`
}

// Default returns the configuration used when no file is given: an
// in-memory SQLite database served on :8000.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ShutdownTimeout: Duration(10 * time.Second),
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Driver:             "sqlite3",
			DSN:                ":memory:",
			StatementTimeout:   Duration(tablestore.DefaultStatementTimeout),
			SlowQueryThreshold: Duration(200 * time.Millisecond),
			Seed:               true,
			ColumnPolicy:       "lenient",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Mail: MailConfig{
			Port: 587,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file. Unknown keys in the file are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return cfg, fmt.Errorf("%s: unknown configuration keys:\n%s", path, strict.String())
			}
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from environment variables looked up with lookup.
//
// TABLESRV_ADDR, TABLESRV_DRIVER, TABLESRV_DSN, TABLESRV_STATIC_DIR,
// TABLESRV_LOG_LEVEL and TABLESRV_COLUMN_POLICY map to the matching keys.
// EMAIL_ADDRESS, EMAIL_PASSWORD, SMTP_SERVER and SMTP_PORT configure mail.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TABLESRV_ADDR":          &c.Server.Addr,
		"TABLESRV_STATIC_DIR":    &c.Server.StaticDir,
		"TABLESRV_DRIVER":        &c.Database.Driver,
		"TABLESRV_DSN":           &c.Database.DSN,
		"TABLESRV_COLUMN_POLICY": &c.Database.ColumnPolicy,
		"TABLESRV_LOG_LEVEL":     &c.Log.Level,
		"TABLESRV_LOG_FORMAT":    &c.Log.Format,
		"EMAIL_ADDRESS":          &c.Mail.Address,
		"EMAIL_PASSWORD":         &c.Mail.Password,
		"SMTP_SERVER":            &c.Mail.Server,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("SMTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.Mail.Port = port
	}
	if v, ok := lookup("TABLESRV_STATEMENT_TIMEOUT"); ok && v != "" {
		if err := c.Database.StatementTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("TABLESRV_STATEMENT_TIMEOUT: %w", err)
		}
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, err := tablestore.DialectFor(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Database.StatementTimeout < 0 {
		return errors.New("database.statement_timeout must not be negative")
	}
	switch strings.ToLower(c.Database.ColumnPolicy) {
	case "", "lenient", "strict":
	default:
		return fmt.Errorf("database.column_policy: unknown policy %q", c.Database.ColumnPolicy)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Mail.Port < 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("mail.port: %d out of range", c.Mail.Port)
	}
	return nil
}
