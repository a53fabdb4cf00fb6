package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.scorecast/scorecast.yaml"
	DefaultDir     = "~/.scorecast"
)

// Config is the top-level configuration. It is loaded once at process start
// and handed to each component constructor.
type Config struct {
	Version    int              `yaml:"version"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Relational RelationalConfig `yaml:"relational"`
	Document   DocumentConfig   `yaml:"document,omitempty"`
	Loader     LoaderConfig     `yaml:"loader,omitempty"`
	Model      ModelConfig      `yaml:"model,omitempty"`
	API        APIConfig        `yaml:"api,omitempty"`
	Archive    ArchiveConfig    `yaml:"archive,omitempty"`
	Logging    LogConfig        `yaml:"logging,omitempty"`
}

// DatasetConfig locates the flat source dataset.
type DatasetConfig struct {
	Path       string   `yaml:"path"`
	NullTokens []string `yaml:"null_tokens,omitempty"`
}

// RelationalConfig defines the relational store connection.
type RelationalConfig struct {
	Driver       string `yaml:"driver"` // postgres or sqlite
	DSN          string `yaml:"dsn,omitempty"`
	Host         string `yaml:"host,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	Database     string `yaml:"database,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	SSL          bool   `yaml:"ssl,omitempty"`
	MaxOpenConns int    `yaml:"max_open_conns,omitempty"`
}

// DocumentConfig defines the MongoDB connection.
type DocumentConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ConnectionString string `yaml:"connection_string,omitempty"`
	Database         string `yaml:"database,omitempty"`
}

// LoaderConfig controls batch loading.
type LoaderConfig struct {
	BatchSize int      `yaml:"batch_size,omitempty"`
	Sinks     []string `yaml:"sinks,omitempty"` // relational, document
}

// ModelConfig locates the prediction model.
type ModelConfig struct {
	Path               string  `yaml:"path,omitempty"`
	Version            string  `yaml:"version,omitempty"`
	FallbackConfidence float64 `yaml:"fallback_confidence,omitempty"`
}

// APIConfig defines the REST server settings.
type APIConfig struct {
	Port int    `yaml:"port,omitempty"`
	Mode string `yaml:"mode,omitempty"` // release or debug
}

// ArchiveConfig defines where run reports are uploaded.
type ArchiveConfig struct {
	Region   string `yaml:"region,omitempty"`
	Profile  string `yaml:"profile,omitempty"`
	S3Bucket string `yaml:"s3_bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.scorecast/logs/
}

// Default returns a config suitable for a local SQLite run.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Dataset: DatasetConfig{Path: "StudentPerformanceFactors.csv"},
		Relational: RelationalConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(ExpandHome(DefaultDir), "scorecast.db"),
		},
		Document: DocumentConfig{
			ConnectionString: "mongodb://localhost:27017",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadEnv reads a .env file into the process environment. A missing file is
// not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(NewResolver()); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Relational.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported relational driver %q", c.Relational.Driver)
	}
	if c.Loader.BatchSize < 1 {
		return fmt.Errorf("loader batch_size must be at least 1, got %d", c.Loader.BatchSize)
	}
	for _, s := range c.Loader.Sinks {
		if s != SinkRelational && s != SinkDocument {
			return fmt.Errorf("unknown sink %q", s)
		}
		if s == SinkDocument && !c.Document.Enabled {
			return fmt.Errorf("document sink requested but document store is disabled")
		}
	}
	return nil
}

// Sink names accepted in loader.sinks.
const (
	SinkRelational = "relational"
	SinkDocument   = "document"
)

// RelationalDSN returns the configured DSN, building a postgres URL from the
// individual fields when none is set.
func (c *Config) RelationalDSN() string {
	rc := c.Relational
	if rc.DSN != "" || rc.Driver != "postgres" {
		return rc.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(rc.Username, rc.Password),
		Host:   fmt.Sprintf("%s:%d", rc.Host, rc.Port),
		Path:   "/" + rc.Database,
	}
	q := u.Query()
	if rc.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// HasSink reports whether the named sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Loader.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c *Config) applyDefaults() {
	if len(c.Dataset.NullTokens) == 0 {
		c.Dataset.NullTokens = []string{"", "NA", "N/A", "nan", "NaN", "null"}
	}
	if c.Relational.Driver == "" {
		c.Relational.Driver = "postgres"
	}
	if c.Relational.Driver == "postgres" {
		if c.Relational.Host == "" {
			c.Relational.Host = "localhost"
		}
		if c.Relational.Port == 0 {
			c.Relational.Port = 5432
		}
		if c.Relational.Database == "" {
			c.Relational.Database = "student_performance_db"
		}
	}
	if c.Relational.MaxOpenConns == 0 {
		c.Relational.MaxOpenConns = 10
	}
	if c.Document.Database == "" {
		c.Document.Database = "student_performance_db"
	}
	if c.Loader.BatchSize == 0 {
		c.Loader.BatchSize = 100
	}
	if len(c.Loader.Sinks) == 0 {
		c.Loader.Sinks = []string{SinkRelational}
		if c.Document.Enabled {
			c.Loader.Sinks = append(c.Loader.Sinks, SinkDocument)
		}
	}
	if c.Model.Version == "" {
		c.Model.Version = "v1.0"
	}
	if c.Model.FallbackConfidence == 0 {
		c.Model.FallbackConfidence = 0.85
	}
	if c.API.Port == 0 {
		c.API.Port = 8000
	}
	if c.API.Mode == "" {
		c.API.Mode = "release"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "scorecast/"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.scorecast/logs/")
	}
}

func (c *Config) resolveSecrets(r *Resolver) error {
	var err error
	c.Relational.Password, err = r.Resolve(c.Relational.Password)
	if err != nil {
		return fmt.Errorf("relational password: %w", err)
	}
	c.Relational.DSN, err = r.Resolve(c.Relational.DSN)
	if err != nil {
		return fmt.Errorf("relational dsn: %w", err)
	}
	c.Document.ConnectionString, err = r.Resolve(c.Document.ConnectionString)
	if err != nil {
		return fmt.Errorf("document connection string: %w", err)
	}
	return nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
