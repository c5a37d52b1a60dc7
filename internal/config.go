package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings like "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Databases DatabasesConfig   `yaml:"databases"`
	Import    ImportConfig      `yaml:"import"`
	MCP       MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Databases.Validate(); err != nil {
		return err
	}
	return c.Import.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DatabasesConfig holds the SQLite paths for the two logical domains and
// the knobs shared by every statement issued against them.
type DatabasesConfig struct {
	RecordsPath      string   `yaml:"records_path"`
	ContentPath      string   `yaml:"content_path"`
	StatementTimeout Duration `yaml:"statement_timeout"`
	SchemaCacheTTL   Duration `yaml:"schema_cache_ttl"`
}

// Validate validates the databases configuration.
func (c *DatabasesConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RecordsPath, validation.Required),
		validation.Field(&c.ContentPath, validation.Required),
	); err != nil {
		return err
	}
	if c.StatementTimeout <= 0 {
		return fmt.Errorf("databases: statement_timeout must be positive, got %s", c.StatementTimeout)
	}
	if c.SchemaCacheTTL <= 0 {
		return fmt.Errorf("databases: schema_cache_ttl must be positive, got %s", c.SchemaCacheTTL)
	}
	return nil
}

// ImportConfig holds the drop-folder importer configuration.
//
// When Enabled is true, files placed under WatchDir are ingested into the
// document store and removed once stored.
type ImportConfig struct {
	Enabled  bool   `yaml:"enabled"`
	WatchDir string `yaml:"watch_dir"`
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.WatchDir, validation.Required),
	)
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Databases: DatabasesConfig{
			RecordsPath:      "./gradivo-records.db",
			ContentPath:      "./gradivo-content.db",
			StatementTimeout: Duration(10 * time.Second),
			SchemaCacheTTL:   Duration(5 * time.Minute),
		},
		Import: ImportConfig{
			Enabled:  false,
			WatchDir: "./import",
		},
	}
}
