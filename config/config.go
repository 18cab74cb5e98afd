/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported adapter drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	DriverDynamoDB = "dynamodb"
	DriverMongo    = "mongo"
)

// Drivers lists every driver name the bootstrap understands.
var Drivers = []string{DriverMemory, DriverSQLite, DriverBadger, DriverDynamoDB, DriverMongo}

// TenantPlaceholder is replaced by the tenant id in per-tenant adapter settings.
const TenantPlaceholder = "{tenant}"

// Config is the complete docstore configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Entities []EntityConfig `yaml:"entities" toml:"entities"`
	// OpenAPI optionally names an OpenAPI document whose components.schemas
	// supply definitions for entities without a schema file.
	OpenAPI string `yaml:"openapi" toml:"openapi"`

	// Dir is the directory of the loaded file; relative schema paths resolve against it.
	Dir string `yaml:"-" toml:"-"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// EntityConfig binds one entity schema to a storage adapter.
type EntityConfig struct {
	Name    string        `yaml:"name" toml:"name"`
	Schema  string        `yaml:"schema" toml:"schema"`
	Tenant  TenantConfig  `yaml:"tenant" toml:"tenant"`
	Adapter AdapterConfig `yaml:"adapter" toml:"adapter"`
}

// TenantConfig enables tenant scoping for an entity.
type TenantConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Identifier string `yaml:"identifier" toml:"identifier"`
}

// AdapterConfig selects and configures a storage driver. Fields a driver does not use are ignored.
type AdapterConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	// PerTenant builds one adapter per tenant id, substituting {tenant} in DSN, Table and Database.
	PerTenant bool `yaml:"per_tenant" toml:"per_tenant"`

	// sqlite, badger
	DSN string `yaml:"dsn" toml:"dsn"`
	// sqlite table, dynamodb table
	Table string `yaml:"table" toml:"table"`

	// dynamodb
	Region     string `yaml:"region" toml:"region"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	AccessKey  string `yaml:"access_key" toml:"access_key"`
	SecretKey  string `yaml:"secret_key" toml:"secret_key"`
	Index      string `yaml:"index" toml:"index"`
	MaxRetries int    `yaml:"max_retries" toml:"max_retries"`

	// mongo
	URI        string `yaml:"uri" toml:"uri"`
	Database   string `yaml:"database" toml:"database"`
	Collection string `yaml:"collection" toml:"collection"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// ForTenant returns a copy with every {tenant} placeholder replaced by tenant.
func (a AdapterConfig) ForTenant(tenant string) AdapterConfig {
	a.DSN = strings.ReplaceAll(a.DSN, TenantPlaceholder, tenant)
	a.Table = strings.ReplaceAll(a.Table, TenantPlaceholder, tenant)
	a.Database = strings.ReplaceAll(a.Database, TenantPlaceholder, tenant)
	a.Collection = strings.ReplaceAll(a.Collection, TenantPlaceholder, tenant)
	return a
}

// Load reads a configuration file from the given path and returns a validated Config.
// A .env file in the same directory is loaded first when present; variables already
// set in the environment win.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir
	return cfg, nil
}

// Parse decodes a configuration in the given format ("yaml" or "toml"), expanding
// ${VAR} references first, and validates it.
func Parse(data []byte, format string) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case "yaml", "":
		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// Validate fills defaults and checks the configuration.
func (c *Config) Validate() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Entities))
	for i := range c.Entities {
		e := &c.Entities[i]
		if e.Name == "" {
			return fmt.Errorf("entities[%d].name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("entity %q is configured twice", e.Name)
		}
		seen[e.Name] = true

		if e.Tenant.Identifier == "" {
			e.Tenant.Identifier = "tenantId"
		}
		if e.Adapter.Driver == "" {
			e.Adapter.Driver = DriverMemory
		}
		if !slices.Contains(Drivers, e.Adapter.Driver) {
			return fmt.Errorf("entity %q: unknown driver %q", e.Name, e.Adapter.Driver)
		}
		if e.Adapter.PerTenant && !e.Tenant.Enabled {
			return fmt.Errorf("entity %q: per_tenant adapters require tenant.enabled", e.Name)
		}
		if e.Adapter.TimeoutRaw != "" {
			d, err := time.ParseDuration(e.Adapter.TimeoutRaw)
			if err != nil {
				return fmt.Errorf("entity %q: parsing timeout %q: %w", e.Name, e.Adapter.TimeoutRaw, err)
			}
			e.Adapter.Timeout = d
		}
		if e.Adapter.Driver == DriverDynamoDB && e.Adapter.Table == "" {
			return fmt.Errorf("entity %q: adapter.table is required for dynamodb", e.Name)
		}
		if e.Adapter.Driver == DriverMongo && (e.Adapter.URI == "" || e.Adapter.Database == "") {
			return fmt.Errorf("entity %q: adapter.uri and adapter.database are required for mongo", e.Name)
		}
	}
	return nil
}

// Entity returns the configuration of the named entity.
func (c *Config) Entity(name string) (EntityConfig, bool) {
	for _, e := range c.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return EntityConfig{}, false
}

// SchemaPath resolves an entity schema path against the configuration directory.
func (c *Config) SchemaPath(e EntityConfig) string {
	return c.Resolve(e.Schema)
}

// Resolve makes a relative path relative to the configuration directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
