package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"

	"github.com/neexbeast/campwatch/internal/availability"
	"github.com/neexbeast/campwatch/internal/reservecal"
)

// Cache backends.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Config is the process configuration, read from the environment and an
// optional YAML file named by CONFIG_FILE.
type Config struct {
	DatabaseURL   string `mapstructure:"database_url" validate:"required"`
	RedisURL      string `mapstructure:"redis_url"`
	BearerToken   string `mapstructure:"bearer_token" validate:"required"`
	Port          int    `mapstructure:"port" validate:"required|min:1|max:65535"`
	MigrationsDir string `mapstructure:"migrations_dir" validate:"required"`
	LogLevel      string `mapstructure:"log_level" validate:"required|in:debug,info,warn,error"`

	AvailabilityURL string        `mapstructure:"availability_url" validate:"required"`
	SearchURL       string        `mapstructure:"search_url" validate:"required"`
	RIDBAPIKey      string        `mapstructure:"ridb_api_key"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	UpstreamRPS     float64       `mapstructure:"upstream_rps"`

	ReserveCalAvailabilityURL string `mapstructure:"reservecal_availability_url" validate:"required"`
	ReserveCalParkURL         string `mapstructure:"reservecal_park_url" validate:"required"`

	CacheBackend string        `mapstructure:"cache_backend" validate:"required|in:redis,memory,none"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheSizeMB  int           `mapstructure:"cache_size_mb"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPFrom     string `mapstructure:"smtp_from"`

	// Ticks wait for the upstream rate limiter inside TickTimeout, so at most
	// UpstreamRPS * TickTimeout ticks can fetch before their deadline.
	MaxConcurrentTicks int           `mapstructure:"max_concurrent_ticks" validate:"required|min:1"`
	TickTimeout        time.Duration `mapstructure:"tick_timeout"`
	Timezone           string        `mapstructure:"timezone"`

	MetricsEnabled   bool     `mapstructure:"metrics_enabled"`
	CORSAllowOrigins []string `mapstructure:"cors_allow_origins"`
}

var defaults = map[string]any{
	"database_url":         "",
	"redis_url":            "",
	"bearer_token":         "",
	"port":                 8080,
	"migrations_dir":       "migrations",
	"log_level":            "info",
	"availability_url":     availability.DefaultAvailabilityURL,
	"search_url":           availability.DefaultSearchURL,
	"ridb_api_key":         "",
	"fetch_timeout":        15 * time.Second,
	"upstream_rps":         2.0,

	"reservecal_availability_url": reservecal.DefaultAvailabilityURL,
	"reservecal_park_url":         reservecal.DefaultParkPageURL,

	"cache_backend":        CacheMemory,
	"cache_ttl":            5 * time.Minute,
	"cache_size_mb":        32,
	"smtp_host":            "",
	"smtp_port":            25,
	"smtp_username":        "",
	"smtp_password":        "",
	"smtp_from":            "campwatch@localhost",
	"max_concurrent_ticks": 32,
	"tick_timeout":         60 * time.Second,
	"timezone":             "",
	"metrics_enabled":      true,
	"cors_allow_origins":   []string{},
}

// Load reads the configuration. Environment variables are the upper-cased
// keys (DATABASE_URL, CACHE_TTL, ...) and override the YAML file.
func Load() (*Config, error) {
	c, err := read()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadClient reads the same sources as Load but only checks the settings
// needed to talk to the upstream feed. The CLI uses it so that it runs
// without a database or bearer token.
func LoadClient() (*Config, error) {
	c, err := read()
	if err != nil {
		return nil, err
	}
	if errs := c.clientErrors(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return c, nil
}

func read() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("binding env for config_file: %w", err)
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	c.CORSAllowOrigins = splitList(c.CORSAllowOrigins)
	return &c, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %s", v.Errors.One())
	}

	errs := c.clientErrors()
	if c.CacheBackend == CacheRedis && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when CACHE_BACKEND=redis"))
	}
	if c.TickTimeout <= 0 {
		errs = append(errs, errors.New("TICK_TIMEOUT must be positive"))
	}
	if c.UpstreamRPS > 0 && c.TickTimeout > 0 &&
		float64(c.MaxConcurrentTicks) > c.UpstreamRPS*c.TickTimeout.Seconds() {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_TICKS %d exceeds UPSTREAM_RPS * TICK_TIMEOUT (%.0f): queued ticks would time out waiting for the rate limiter",
			c.MaxConcurrentTicks, c.UpstreamRPS*c.TickTimeout.Seconds()))
	}
	if c.CacheBackend != CacheNone && c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.SMTPHost != "" && (c.SMTPPort < 1 || c.SMTPPort > 65535) {
		errs = append(errs, fmt.Errorf("SMTP_PORT %d out of range", c.SMTPPort))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) clientErrors() []error {
	var errs []error
	if c.AvailabilityURL == "" || c.SearchURL == "" {
		errs = append(errs, errors.New("AVAILABILITY_URL and SEARCH_URL must be set"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.UpstreamRPS < 0 {
		errs = append(errs, errors.New("UPSTREAM_RPS must not be negative"))
	}
	return errs
}

// Location resolves Timezone. An empty value means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SMTPEnabled reports whether outbound mail is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
