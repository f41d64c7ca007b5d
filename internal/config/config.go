// Package config loads the YAML configuration file shared by the actdata commands.
package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the file looked up when no --config flag is given.
const DefaultPath = "actdata.yaml"

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config is the root of actdata.yaml.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Engine EngineConfig `yaml:"engine"`
	HTTP   HTTPConfig   `yaml:"http"`

	// Types is the path of the YAML type table documents are hydrated against.
	Types string `yaml:"types"`

	// Functions registers local commands as Tree Functions.
	Functions []FunctionConfig `yaml:"functions" validate:"unique=Name,dive"`
}

// FunctionConfig declares one process-backed Tree Function. Input values are passed
// through the environment and stdin, never as arguments.
type FunctionConfig struct {
	Name    string            `yaml:"name" validate:"required"`
	Command string            `yaml:"command" validate:"required"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Type string `yaml:"type" validate:"required,oneof=memory file badger sqlite redis"`

	// Path is the directory (file, badger) or database file (sqlite).
	Path string `yaml:"path" validate:"required_if=Type file,required_if=Type badger,required_if=Type sqlite"`

	// Redis connection.
	Address  string        `yaml:"address" validate:"required_if=Type redis"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
	Lock     bool          `yaml:"lock"`

	Encryption EncryptionConfig `yaml:"encryption"`

	// Redact lists regular expressions; matching string parameters are masked on save.
	Redact []string `yaml:"redact" validate:"dive,required,regexp"`
}

// EncryptionConfig holds base64 encoded AES-256 keys. An empty Key disables encryption.
type EncryptionConfig struct {
	Key          string   `yaml:"key" validate:"omitempty,aeskey"`
	FallbackKeys []string `yaml:"fallback_keys" validate:"dive,aeskey"`
}

// Enabled reports whether an active key is configured.
func (c EncryptionConfig) Enabled() bool {
	return c.Key != ""
}

// Keys decodes the active and fallback keys.
func (c EncryptionConfig) Keys() ([]byte, [][]byte, error) {
	active, err := base64.StdEncoding.DecodeString(c.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("decode encryption key: %w", err)
	}
	var fallback [][]byte
	for i, k := range c.FallbackKeys {
		b, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, nil, fmt.Errorf("decode fallback key %d: %w", i, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}

// EngineConfig tunes the execution engine and the session manager.
type EngineConfig struct {
	RetouchPolicy      string `yaml:"retouch_policy" validate:"oneof=error iterate"`
	MaxPasses          int    `yaml:"max_passes" validate:"gte=0"`
	UndoLimit          int    `yaml:"undo_limit" validate:"gte=0"`
	Expressions        bool   `yaml:"expressions"`
	PersistConversions bool   `yaml:"persist_conversions"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{Type: StoreMemory},
		Engine: EngineConfig{
			RetouchPolicy: "error",
			Expressions:   true,
		},
		HTTP: HTTPConfig{Addr: ":8080", ShutdownTimeout: 5 * time.Second},
	}
}

// Load reads path over the defaults. A missing file at DefaultPath yields Default().
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("aeskey", func(fl validator.FieldLevel) bool {
			b, err := base64.StdEncoding.DecodeString(fl.Field().String())
			return err == nil && len(b) == 32
		})
		_ = validate.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
			_, err := regexp.Compile(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate checks every field and reports all failures at once.
func (c *Config) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fieldPath(e.Namespace()), describe(e)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of " + e.Param()
	case "regexp":
		return "must be a valid regular expression"
	case "aeskey":
		return "must be a base64 encoded 32 byte key"
	case "gte":
		return "must be >= " + e.Param()
	case "gt":
		return "must be > " + e.Param()
	case "unique":
		return "must not repeat " + e.Param()
	}
	return "failed " + e.Tag()
}
