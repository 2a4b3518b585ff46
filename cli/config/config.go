// Package config provides configuration management for the snapmink CLI.
//
// Settings are read from snapmink.yaml and then overridden by SNAPMINK_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name
const ConfigFileName = "snapmink.yaml"

// Config represents the snapmink CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version" validate:"required"`

	EventStore EventStoreConfig `yaml:"event_store"`
	Snapshots  SnapshotConfig   `yaml:"snapshots"`
	Rebuild    RebuildConfig    `yaml:"rebuild"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EventStoreConfig selects the event log backend.
type EventStoreConfig struct {
	// Driver is postgres or memory
	Driver string `yaml:"driver" env:"SNAPMINK_EVENT_STORE_DRIVER" validate:"required,oneof=postgres memory"`

	// URL is the database connection string
	URL string `yaml:"url,omitempty" env:"SNAPMINK_DATABASE_URL" validate:"required_if=Driver postgres"`

	Schema string `yaml:"schema" env:"SNAPMINK_SCHEMA" validate:"required"`
}

// SnapshotConfig selects the snapshot backend and trigger.
type SnapshotConfig struct {
	// Backend is postgres, badger, dynamodb or memory
	Backend string `yaml:"backend" env:"SNAPMINK_SNAPSHOT_BACKEND" validate:"required,oneof=postgres badger dynamodb memory"`

	// Threshold is the event count N of the default trigger. Zero disables snapshots.
	Threshold int `yaml:"threshold" env:"SNAPMINK_SNAPSHOT_THRESHOLD" validate:"gte=0"`

	// Codec encodes aggregate state: json or msgpack
	Codec string `yaml:"codec" env:"SNAPMINK_SNAPSHOT_CODEC" validate:"required,oneof=json msgpack"`

	BadgerPath string `yaml:"badger_path,omitempty" env:"SNAPMINK_BADGER_PATH" validate:"required_if=Backend badger"`

	DynamoDBTable string        `yaml:"dynamodb_table,omitempty" env:"SNAPMINK_DYNAMODB_TABLE" validate:"required_if=Backend dynamodb"`
	DynamoDBTTL   time.Duration `yaml:"dynamodb_ttl,omitempty" env:"SNAPMINK_DYNAMODB_TTL" validate:"gte=0"`

	// CircuitBreaker wraps the snapshot backend in a breaker that degrades
	// to full replay while open.
	CircuitBreaker bool `yaml:"circuit_breaker" env:"SNAPMINK_SNAPSHOT_CIRCUIT_BREAKER"`
}

// RebuildConfig controls the rebuild command.
type RebuildConfig struct {
	// Policy is stream or since-snapshot
	Policy      string `yaml:"policy" env:"SNAPMINK_REBUILD_POLICY" validate:"required,oneof=stream since-snapshot"`
	Concurrency int    `yaml:"concurrency" env:"SNAPMINK_REBUILD_CONCURRENCY" validate:"gte=1"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"SNAPMINK_LOG_LEVEL" validate:"required,oneof=debug info warn error"`
	Development bool   `yaml:"development" env:"SNAPMINK_LOG_DEVELOPMENT"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		EventStore: EventStoreConfig{
			Driver: "postgres",
			Schema: "snapmink",
		},
		Snapshots: SnapshotConfig{
			Backend:   "postgres",
			Threshold: 100,
			Codec:     "json",
		},
		Rebuild: RebuildConfig{
			Policy:      "stream",
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the specified directory
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path. Fields missing
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SNAPMINK_* environment variables. Unset
// variables leave the current value alone.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the configuration and returns one message per problem.
func (c *Config) Validate() []string {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return msgs
}

func formatFieldError(fe validator.FieldError) string {
	// Namespace is "Config.snapshots.backend"; drop the root type.
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		parts := strings.Fields(fe.Param())
		if len(parts) == 2 {
			return fmt.Sprintf("%s is required when %s is %s", field, strings.ToLower(parts[0]), parts[1])
		}
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// GenerateYAML generates YAML content with comments
func GenerateYAML(cfg *Config) string {
	return `# snapmink configuration
# Every value can be overridden with a SNAPMINK_* environment variable.

version: "1"

# Event log
event_store:
  # Driver: postgres or memory
  driver: "` + cfg.EventStore.Driver + `"

  # Connection URL (required for postgres, or set SNAPMINK_DATABASE_URL)
  url: "` + cfg.EventStore.URL + `"

  schema: "` + cfg.EventStore.Schema + `"

# Snapshot storage
snapshots:
  # Backend: postgres, badger, dynamodb or memory
  backend: "` + cfg.Snapshots.Backend + `"

  # Snapshot every N events; 0 disables snapshots
  threshold: ` + fmt.Sprint(cfg.Snapshots.Threshold) + `

  # State codec: json or msgpack
  codec: "` + cfg.Snapshots.Codec + `"

  # badger_path: "./data/snapshots"
  # dynamodb_table: "snapshots"
  # dynamodb_ttl: "720h"

  circuit_breaker: ` + fmt.Sprint(cfg.Snapshots.CircuitBreaker) + `

rebuild:
  # Policy: stream or since-snapshot
  policy: "` + cfg.Rebuild.Policy + `"
  concurrency: ` + fmt.Sprint(cfg.Rebuild.Concurrency) + `

logging:
  level: "` + cfg.Logging.Level + `"
  development: ` + fmt.Sprint(cfg.Logging.Development) + `
`
}
