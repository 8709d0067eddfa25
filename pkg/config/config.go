// Package config loads the comment feed configuration with viper.
//
// Values come from, in increasing precedence: built-in defaults, the config file
// (comment-scroll.yaml), COMMENT_SCROLL_* environment variables and flags bound by the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/comment-scroll/pkg/logging"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file name searched for without an explicit path.
	FileName = "comment-scroll"

	// EnvPrefix prefixes environment overrides, e.g. COMMENT_SCROLL_PAGE_SIZE.
	EnvPrefix = "COMMENT_SCROLL"
)

// Config holds the complete configuration.
type Config struct {
	BaseURL       string
	PageSize      int
	AvatarBaseURL string
	UserAgent     string
	Log           *Log
	RateLimit     *RateLimit
	Redis         *Redis
	Metrics       *Metrics
	View          *View
	Viper         *viper.Viper
}

// Log configures the zerolog setup.
type Log struct {
	Level  string
	Pretty bool
}

// RateLimit configures the request budget gate of the client.
type RateLimit struct {
	Enabled bool
}

// Redis configures the shared budget store. An empty Addr keeps the budget in memory.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string
}

// View configures the terminal viewport.
type View struct {
	// Height is the number of comment cards visible at once.
	Height int
}

// NewViper returns a viper instance with defaults and environment binding applied.
// Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("base_url", "https://jsonplaceholder.typicode.com")
	v.SetDefault("page_size", 10)
	v.SetDefault("avatar_base_url", "https://robohash.org")
	v.SetDefault("user_agent", "comment-scroll/0.1.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("view.height", 5)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file into v and returns the validated configuration.
// With an empty path the file is optional and searched in . and $HOME/.comment-scroll;
// an explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.comment-scroll")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:       v.GetString("base_url"),
		PageSize:      v.GetInt("page_size"),
		AvatarBaseURL: v.GetString("avatar_base_url"),
		UserAgent:     v.GetString("user_agent"),
		Log:           getLogConfig(v),
		RateLimit:     &RateLimit{Enabled: v.GetBool("ratelimit.enabled")},
		Redis:         getRedisConfig(v),
		Metrics:       &Metrics{Addr: v.GetString("metrics.addr")},
		View:          &View{Height: v.GetInt("view.height")},
		Viper:         v,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getLogConfig(v *viper.Viper) *Log {
	return &Log{
		Level:  v.GetString("log.level"),
		Pretty: v.GetBool("log.pretty"),
	}
}

func getRedisConfig(v *viper.Viper) *Redis {
	return &Redis{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if err := validateURL("base_url", c.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("avatar_base_url", c.AvatarBaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page_size must be >= 1 (got %d)", c.PageSize))
	}
	if c.Log != nil && !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.View != nil && c.View.Height < 1 {
		errs = append(errs, fmt.Errorf("view.height must be >= 1 (got %d)", c.View.Height))
	}

	return errors.Join(errs...)
}

// LoggingConfig converts the log section for logging.Setup.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	if c.Log != nil {
		lc.Level = logging.LogLevel(strings.ToLower(c.Log.Level))
		lc.Pretty = c.Log.Pretty
	}
	return lc
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL (got %q)", key, raw)
	}
	return nil
}
