// Package config manages application configuration from environment
// variables, an optional config file, and default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration indicates that configuration could not be loaded or
// failed validation. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

// Default values for optional configuration parameters.
const (
	DefaultSessionFile = "tgchanapi.session"

	DefaultServerAddr            = ":8000"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 2 * time.Minute
	DefaultServerShutdownTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDBPath = "peers.db"

	DefaultRefreshInterval = 15 * time.Minute

	DefaultStartTimeout = 30 * time.Second
)

// Config defines the application configuration. Values can be set via
// environment variables prefixed with TELEGRAM_ (e.g. TELEGRAM_API_ID,
// TELEGRAM_API_HASH) or through config.yaml.
type Config struct {
	// Telegram API credentials issued at my.telegram.org, plus the
	// persisted session artifact produced by the setup command.
	APIID       int    `mapstructure:"api_id"       validate:"required,gt=0"`
	APIHash     string `mapstructure:"api_hash"     validate:"required"`
	SessionFile string `mapstructure:"session_file" validate:"required"`
	Phone       string `mapstructure:"phone"`

	// StartTimeout bounds how long the serving process waits for the
	// Telegram connection to come up before giving up.
	StartTimeout time.Duration `mapstructure:"start_timeout" validate:"required,min=1s,max=10m"`

	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"required"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DatabaseConfig holds the peer cache settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RefreshConfig controls the periodic dialog cache refresh job.
type RefreshConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"required,min=1m"`
}

// LoadConfig loads and validates configuration from:
//  1. Default values
//  2. The config file at path (optional, may be absent)
//  3. TELEGRAM_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TELEGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials usually arrive via environment only; bind them
	// explicitly so Unmarshal sees keys that have no default.
	for _, key := range []string{"api_id", "api_hash", "phone"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("%w: failed to bind %s: %v", ErrConfiguration, key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// Missing config file is fine, env and defaults apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(errors.Unwrap(err)) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session_file", DefaultSessionFile)
	v.SetDefault("start_timeout", DefaultStartTimeout)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("refresh.enabled", false)
	v.SetDefault("refresh.interval", DefaultRefreshInterval)
}
