package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SHIPMENT_TRACKER_SERVER_PORT
const EnvPrefix = "SHIPMENT_TRACKER"

var keys = []string{
	"server.host",
	"server.port",
	"server.shutdown_timeout",
	"server.api_key",
	"database.path",
	"cache.disabled",
	"cache.ttl",
	"logging.level",
	"logging.format",
	"fetch.timeout",
	"fetch.user_agent",
	"fetch.retries",
	"fetch.headless.enabled",
	"fetch.headless.timeout",
	"fetch.oauth2.token_url",
	"fetch.oauth2.client_id",
	"fetch.oauth2.client_secret",
	"fetch.oauth2.scopes",
	"carriers.postnord.api_key",
	"cli.format",
	"cli.no_color",
}

// LoadWithViper loads configuration using the given Viper instance. Flags
// bound to v before the call take precedence over env and file values.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	setupEnvBinding(v)

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Load loads configuration from .env, the environment and an optional
// tracker.yaml
func Load() (*Config, error) {
	LoadEnvFile(".env")
	return LoadWithViper(viper.New())
}

// LoadWithFile loads configuration from a specific file
func LoadWithFile(configFile string) (*Config, error) {
	LoadEnvFile(".env")
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadWithViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_key", "")

	v.SetDefault("database.path", "./tracker.db")

	v.SetDefault("cache.disabled", false)
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.headless.enabled", false)
	v.SetDefault("fetch.headless.timeout", "60s")
	v.SetDefault("fetch.oauth2.token_url", "")
	v.SetDefault("fetch.oauth2.client_id", "")
	v.SetDefault("fetch.oauth2.client_secret", "")
	v.SetDefault("fetch.oauth2.scopes", []string{})

	v.SetDefault("carriers.postnord.api_key", "")

	v.SetDefault("cli.format", "table")
	v.SetDefault("cli.no_color", false)
}

func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so bind each one explicitly
	for _, key := range keys {
		v.BindEnv(key)
	}

	// NO_COLOR is honored as a convention across terminal tools
	v.BindEnv("cli.no_color", EnvPrefix+"_CLI_NO_COLOR", "NO_COLOR")
	// The prefixed name wins over the carrier's own variable
	v.BindEnv("carriers.postnord.api_key", EnvPrefix+"_CARRIERS_POSTNORD_API_KEY", "POSTNORD_API_KEY")
}

func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME")
		v.SetConfigName("tracker")
	}

	if err := v.ReadInConfig(); err != nil {
		// The config file is optional unless one was requested explicitly
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return nil
}
