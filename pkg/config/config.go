// Package config holds the explicit configuration structure for qconsole.
//
// Values come from, in increasing precedence: DefaultConfig, an optional
// configuration file (YAML, JSON or TOML), a .env file, QCONSOLE_ prefixed
// environment variables and finally command line flags applied by the caller.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// EnvPrefix is the prefix for environment overrides.
// QCONSOLE_BACKEND_DSN maps to backend.dsn.
const EnvPrefix = "QCONSOLE_"

// DefaultPageCeiling is the maximum number of rows a single backend call
// returns. It is also the continuation signal for windowed fetches.
const DefaultPageCeiling = 5000

// Config holds all qconsole configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Query     QueryConfig     `mapstructure:"query"`
	Library   LibraryConfig   `mapstructure:"library"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Workbooks WorkbooksConfig `mapstructure:"workbooks"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// StrictOperations answers unknown operation names with an error
	// envelope instead of an empty body.
	StrictOperations bool `mapstructure:"strict_operations"`

	// SessionCookie names the cookie carrying the document session ID.
	SessionCookie string `mapstructure:"session_cookie"`

	// ClientHeader names the header that identifies a calling client for
	// rate limiting and audit logs. Token subjects take precedence.
	ClientHeader string `mapstructure:"client_header"`
}

// Address returns the full listen address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BackendConfig selects and configures the query backend.
type BackendConfig struct {
	// Driver: sqlite, postgres, sqlserver, duckdb
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// Dialect overrides the SQL flavour used for windowing. Empty means the
	// driver's own dialect; "suiteql" emits the platform's ROWNUM form.
	Dialect string `mapstructure:"dialect"`

	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

// QueryConfig holds the query engine settings.
type QueryConfig struct {
	// PageCeiling is the backend's per-call row ceiling.
	PageCeiling int `mapstructure:"page_ceiling"`

	// DefaultRowEnd is used when a paginated request omits rowEnd.
	DefaultRowEnd int `mapstructure:"default_row_end"`
}

// LibraryConfig configures the saved query library. An empty Folder
// disables the library and, with it, view resolution.
type LibraryConfig struct {
	// Kind: fs or object
	Kind   string `mapstructure:"kind"`
	Folder string `mapstructure:"folder"`

	// Watch keeps the fs index current with file system notifications.
	Watch bool `mapstructure:"watch"`

	// Object store settings (Kind == "object"); Folder is the bucket.
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// Enabled reports whether a library folder is configured.
func (c LibraryConfig) Enabled() bool {
	return strings.TrimSpace(c.Folder) != ""
}

// RemoteConfig configures the public remote query library.
type RemoteConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// WorkbooksConfig configures the workbook bridge.
type WorkbooksConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Table   string `mapstructure:"table"`
}

// AuthConfig configures bearer token authentication.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// RateLimitConfig configures per-client request rate limiting.
// RequestsPerMinute of 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  5 * time.Minute,
			IdleTimeout:   5 * time.Minute,
			SessionCookie: "qconsole_session",
			ClientHeader:  "X-Client-ID",
		},
		Backend: BackendConfig{
			Driver:       "sqlite",
			DSN:          ":memory:",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		},
		Query: QueryConfig{
			PageCeiling:   DefaultPageCeiling,
			DefaultRowEnd: 50,
		},
		Library: LibraryConfig{
			Kind: "fs",
		},
		Remote: RemoteConfig{
			Bucket: "suiteql",
			Prefix: "queries/",
			Region: "us-east-1",
		},
		Workbooks: WorkbooksConfig{
			Table: "UsrSavedSearch",
		},
		RateLimit: RateLimitConfig{
			Burst: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (when non-empty), the .env file in the working directory
// (when present) and QCONSOLE_ environment variables into cfg.
func Load(path string, cfg *Config) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return qerrors.Wrap(err, qerrors.ErrCodeConfigParse, "failed to read .env").
			WithOp("config.Load").
			Err()
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return qerrors.Wrap(err, qerrors.ErrCodeConfigParse, "failed to read config file").
				WithOp("config.Load").
				WithField("path", path).
				Err()
		}
	}

	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		// QCONSOLE_LIBRARY_FOLDER -> library.folder; the first underscore
		// separates the section, the rest belongs to the key.
		section, field, _ := strings.Cut(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_")
		if field == "" {
			continue
		}
		v.Set(section+"."+field, value)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeConfigParse, "failed to unmarshal config").
			WithOp("config.Load").
			Err()
	}
	return cfg.Validate()
}

// Validate checks the configuration for values the core cannot work with.
func (c *Config) Validate() error {
	if c.Query.PageCeiling <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "query.page_ceiling must be positive").
			WithField("page_ceiling", c.Query.PageCeiling).
			Err()
	}
	if c.Query.DefaultRowEnd <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "query.default_row_end must be positive").
			WithField("default_row_end", c.Query.DefaultRowEnd).
			Err()
	}
	if c.Backend.Driver == "" {
		return qerrors.New(qerrors.ErrCodeConfigMissing, "backend.driver is required").Err()
	}
	switch c.Library.Kind {
	case "", "fs", "object":
	default:
		return qerrors.Newf(qerrors.ErrCodeConfigInvalid, "unknown library kind: %s", c.Library.Kind).Err()
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return qerrors.New(qerrors.ErrCodeConfigMissing, "auth.jwt_secret is required when auth is enabled").Err()
	}
	if c.Workbooks.Enabled && c.Workbooks.Table == "" {
		return qerrors.New(qerrors.ErrCodeConfigMissing, "workbooks.table is required when workbooks are enabled").Err()
	}
	return nil
}
