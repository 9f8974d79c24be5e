// Package config loads the YAML configuration shared by the commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"antex_parser/internal/storage"
)

type Config struct {
	// Exclude lists antenna types that never produce output (satellite
	// and generic reference types). Matching is exact on the trimmed type.
	Exclude []string `yaml:"exclude"`

	Reader     ReaderConfig     `yaml:"reader"`
	Output     OutputConfig     `yaml:"output"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
}

type ReaderConfig struct {
	SkipInvalid bool `yaml:"skip_invalid"`
	Workers     int  `yaml:"workers" validate:"min=1,max=64"`
}

type OutputConfig struct {
	// JSONDir, when set, receives one JSON file per calibration.
	JSONDir string `yaml:"json_dir"`
}

type SQLiteConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path" validate:"required_if=Enable true"`
}

type ClickHouseConfig struct {
	Enable   bool   `yaml:"enable"`
	Host     string `yaml:"host" validate:"required_if=Enable true"`
	Port     int    `yaml:"port" validate:"min=0,max=65535"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type PostgresConfig struct {
	Enable   bool   `yaml:"enable"`
	Host     string `yaml:"host" validate:"required_if=Enable true"`
	Port     int    `yaml:"port" validate:"min=0,max=65535"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type NATSConfig struct {
	Enable        bool          `yaml:"enable"`
	URL           string        `yaml:"url" validate:"required_if=Enable true"`
	SubjectPrefix string        `yaml:"subject_prefix" validate:"required_if=Enable true,excludesall=*>"`
	FlushTimeout  time.Duration `yaml:"flush_timeout" validate:"min=0"`
}

type APIConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	APIKey       string        `yaml:"api_key"`
	CORSOrigin   string        `yaml:"cors_origin"`
	CacheTTL     time.Duration `yaml:"cache_ttl" validate:"min=0"`
	DefaultLimit int           `yaml:"default_limit" validate:"min=1"`
	MaxLimit     int           `yaml:"max_limit" validate:"gtefield=DefaultLimit"`
}

// DefaultExclude holds the satellite antenna types found in IGS ANTEX files.
var DefaultExclude = []string{
	"BLOCK I",
	"BLOCK II",
	"BLOCK IIA",
	"BLOCK IIF",
	"BLOCK IIR",
	"BLOCK IIR-A",
	"BLOCK IIR-B",
	"BLOCK IIR-M",
	"GLONASS",
	"GLONASS-M",
	"GLONASS-K1",
	"GALILEO-1",
	"GALILEO-2",
	"GALILEO-0A",
	"GALILEO-0B",
	"BEIDOU-2G",
	"BEIDOU-2I",
	"BEIDOU-2M",
	"QZSS",
	"IRNSS-1IGSO",
	"IRNSS-1GEO",
}

// Default returns the configuration used when no file is given. Database
// settings come from storage.DefaultConfig with every store disabled.
func Default() Config {
	sc := storage.DefaultConfig()
	return Config{
		Exclude: append([]string(nil), DefaultExclude...),
		Reader:  ReaderConfig{Workers: 4},
		SQLite:  SQLiteConfig{Path: sc.SQLitePath},
		ClickHouse: ClickHouseConfig{
			Host:     sc.ClickHouse.Host,
			Port:     sc.ClickHouse.Port,
			Database: sc.ClickHouse.Database,
			User:     sc.ClickHouse.User,
			Password: sc.ClickHouse.Password,
		},
		Postgres: PostgresConfig{
			Host:     sc.Postgres.Host,
			Port:     sc.Postgres.Port,
			Database: sc.Postgres.Database,
			User:     sc.Postgres.User,
			Password: sc.Postgres.Password,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "antex.calibration",
			FlushTimeout:  5 * time.Second,
		},
		API: APIConfig{
			Addr:         ":8080",
			CacheTTL:     time.Minute,
			DefaultLimit: 100,
			MaxLimit:     1000,
		},
	}
}

// Load reads path over Default and validates the result. An empty path
// returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their YAML keys.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and reports the first failure by its
// YAML path.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	return fmt.Errorf("%s: failed %q check", yamlPath(fe.Namespace()), fe.Tag())
}

// yamlPath drops the root type from a namespace like "Config.nats.url".
func yamlPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// Excluder returns the exclusion predicate for antex.Options.
func (c Config) Excluder() func(string) bool {
	set := make(map[string]struct{}, len(c.Exclude))
	for _, t := range c.Exclude {
		set[strings.TrimSpace(t)] = struct{}{}
	}
	return func(antennaType string) bool {
		_, ok := set[strings.TrimSpace(antennaType)]
		return ok
	}
}

// StorageConfig maps the enabled database sections onto storage.Config.
func (c Config) StorageConfig() storage.Config {
	var sc storage.Config
	if c.SQLite.Enable {
		sc.SQLitePath = c.SQLite.Path
	}
	if c.ClickHouse.Enable {
		sc.ClickHouse = &storage.ClickHouseConfig{
			Host:     c.ClickHouse.Host,
			Port:     c.ClickHouse.Port,
			Database: c.ClickHouse.Database,
			User:     c.ClickHouse.User,
			Password: c.ClickHouse.Password,
		}
	}
	if c.Postgres.Enable {
		sc.Postgres = &storage.PostgresConfig{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			Database: c.Postgres.Database,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
		}
	}
	return sc
}
