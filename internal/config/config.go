package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Carriers CarriersConfig `mapstructure:"carriers"`
	CLI      CLIConfig      `mapstructure:"cli"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required,hostname|ip"`
	Port            int           `mapstructure:"port" validate:"required,gt=0,lte=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// APIKey protects batch tracking and cache invalidation when set
	APIKey string `mapstructure:"api_key"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type CacheConfig struct {
	Disabled bool          `mapstructure:"disabled"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

type FetchConfig struct {
	Timeout   time.Duration  `mapstructure:"timeout" validate:"gt=0"`
	UserAgent string         `mapstructure:"user_agent"`
	Retries   int            `mapstructure:"retries" validate:"gte=0,lte=10"`
	Headless  HeadlessConfig `mapstructure:"headless"`
	OAuth2    OAuth2Config   `mapstructure:"oauth2"`
}

type HeadlessConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// OAuth2Config enables the oauth2-http provider when TokenURL is set
type OAuth2Config struct {
	TokenURL     string   `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID     string   `mapstructure:"client_id" validate:"required_with=TokenURL"`
	ClientSecret string   `mapstructure:"client_secret" validate:"required_with=TokenURL"`
	Scopes       []string `mapstructure:"scopes"`
}

type CarriersConfig struct {
	PostNord CarrierCredentials `mapstructure:"postnord"`
}

type CarrierCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

type CLIConfig struct {
	Format  string `mapstructure:"format" validate:"required,oneof=table json"`
	NoColor bool   `mapstructure:"no_color"`
}

// Address returns the server listen address
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// OAuth2Enabled reports whether client credentials are configured
func (c *Config) OAuth2Enabled() bool {
	return c.Fetch.OAuth2.TokenURL != ""
}

var validate = validator.New()

// Validate checks the configuration and reports every invalid field
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// fieldError turns a validation failure into a message naming the config key
func fieldError(fe validator.FieldError) string {
	key := configKey(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", key, strings.ToLower(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", key, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", key)
	case "url":
		return key + " must be a valid URL"
	case "hostname|ip":
		return key + " must be a hostname or IP address"
	default:
		return fmt.Sprintf("%s failed validation (%s)", key, fe.Tag())
	}
}

// configKey maps "Config.Server.ShutdownTimeout" to "server.shutdowntimeout"
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
