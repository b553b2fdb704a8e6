package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shipment-tracker/internal/cache"
	"shipment-tracker/internal/carriers"
	"shipment-tracker/internal/cli"
	"shipment-tracker/internal/config"
	"shipment-tracker/internal/database"
	"shipment-tracker/internal/fetch"
	"shipment-tracker/internal/metrics"
	"shipment-tracker/internal/tracking"
)

// backend answers the CLI commands, either in process or through the API
type backend interface {
	Track(ctx context.Context, reqs []tracking.Request) ([]tracking.Result, error)
	TrackingURL(ctx context.Context, carrier, trackingNumber, language string, params map[string]any) (string, error)
	Carriers(ctx context.Context) (names, providers []string, err error)
	Close() error
}

// loadConfiguration reads the config file, environment and the persistent
// flags of cmd. Flags win over everything else.
func loadConfiguration(cmd *cobra.Command) (*config.Config, error) {
	config.LoadEnvFile(".env")

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	flags := cmd.Flags()
	bindings := map[string]string{
		"cli.format":   "format",
		"cli.no_color": "no-color",
	}
	for key, name := range bindings {
		if flag := flags.Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger logs to stderr. Outside of serve only warnings are shown unless
// --verbose is given.
func newLogger(cfg *config.Config, w io.Writer, serving bool) *slog.Logger {
	logging := cfg.Logging
	if !serving && !verbose {
		logging.Level = "warn"
	}
	return config.NewLogger(logging, w)
}

func newFormatter(cmd *cobra.Command, cfg *config.Config) *cli.OutputFormatter {
	return cli.NewOutputFormatterWithWriters(cfg.CLI.Format, quiet, cfg.CLI.NoColor, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// stack is the in-process tracking pipeline shared by the CLI and serve
type stack struct {
	Service  *tracking.Service
	DB       *database.DB
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	cache    *cache.Manager
	headless *fetch.HeadlessProvider
}

// newStack wires providers, carriers, the cache database and the tracking
// service from cfg
func newStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	providers, headless, err := buildProviders(ctx, cfg, m, logger)
	if err != nil {
		return nil, err
	}

	opts := []carriers.RegistryOption{carriers.WithLogger(logger)}
	if key := cfg.Carriers.PostNord.APIKey; key != "" {
		opts = append(opts, carriers.WithAPIKey("postnord", key))
	}
	registry := carriers.NewRegistry(providers, opts...)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		if headless != nil {
			headless.Close()
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Database initialized", "path", cfg.Database.Path)

	cacheManager := cache.NewManager(db.TrackCache, cache.Options{
		Disabled: cfg.Cache.Disabled,
		TTL:      cfg.Cache.TTL,
		Metrics:  m,
	}, logger)

	service := tracking.NewService(registry, cacheManager, tracking.Options{Metrics: m}, logger)

	return &stack{
		Service:  service,
		DB:       db,
		Metrics:  m,
		Gatherer: reg,
		cache:    cacheManager,
		headless: headless,
	}, nil
}

// Close releases the browser, the cache and the database
func (s *stack) Close() error {
	s.cache.Close()
	var errs []error
	if s.headless != nil {
		errs = append(errs, s.headless.Close())
	}
	errs = append(errs, s.DB.Close())
	return errors.Join(errs...)
}

// buildProviders registers every configured fetch provider. HTTP providers
// retry transient failures and all providers are instrumented.
func buildProviders(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*fetch.Registry, *fetch.HeadlessProvider, error) {
	retry := fetch.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Fetch.Retries + 1

	httpOpts := []fetch.HTTPOption{
		fetch.WithClient(fetch.NewHTTPClient(0)),
		fetch.WithDefaultTimeout(cfg.Fetch.Timeout),
	}
	if cfg.Fetch.UserAgent != "" {
		httpOpts = append(httpOpts, fetch.WithUserAgent(cfg.Fetch.UserAgent))
	}

	wrap := func(name string, p fetch.Provider) fetch.Provider {
		return fetch.Instrument(name, fetch.NewRetryProvider(p, retry), m)
	}

	providers := fetch.NewRegistry()
	registrations := map[string]fetch.Provider{
		fetch.DefaultHTTP: wrap(fetch.DefaultHTTP, fetch.NewHTTPProvider(httpOpts...)),
		fetch.AltHTTP:     wrap(fetch.AltHTTP, fetch.NewAltHTTPProvider(httpOpts...)),
	}
	if cfg.OAuth2Enabled() {
		oauth := fetch.NewOAuth2Provider(ctx, fetch.OAuth2Config{
			TokenURL:     cfg.Fetch.OAuth2.TokenURL,
			ClientID:     cfg.Fetch.OAuth2.ClientID,
			ClientSecret: cfg.Fetch.OAuth2.ClientSecret,
			Scopes:       cfg.Fetch.OAuth2.Scopes,
		}, fetch.WithDefaultTimeout(cfg.Fetch.Timeout))
		registrations[fetch.OAuth2HTTP] = wrap(fetch.OAuth2HTTP, oauth)
	}

	var headless *fetch.HeadlessProvider
	if cfg.Fetch.Headless.Enabled {
		opts := fetch.DefaultHeadlessOptions()
		opts.Timeout = cfg.Fetch.Headless.Timeout
		if cfg.Fetch.UserAgent != "" {
			opts.UserAgent = cfg.Fetch.UserAgent
		}
		headless = fetch.NewHeadlessProvider(opts, logger)
		// A browser render is too slow to retry
		registrations[fetch.Headless] = fetch.Instrument(fetch.Headless, headless, m)
	}

	for name, p := range registrations {
		if err := providers.Register(name, p); err != nil {
			return nil, nil, fmt.Errorf("failed to register provider %s: %w", name, err)
		}
	}

	logger.Debug("Fetch providers registered", "providers", providers.Names())
	return providers, headless, nil
}

// localBackend tracks in process
type localBackend struct {
	stack *stack
}

func (b *localBackend) Track(ctx context.Context, reqs []tracking.Request) ([]tracking.Result, error) {
	if len(reqs) == 1 {
		result, err := b.stack.Service.Track(ctx, reqs[0])
		if err != nil {
			return nil, err
		}
		return []tracking.Result{*result}, nil
	}
	return b.stack.Service.TrackMany(ctx, reqs), nil
}

func (b *localBackend) TrackingURL(_ context.Context, carrier, trackingNumber, language string, params map[string]any) (string, error) {
	return b.stack.Service.TrackingURL(carrier, trackingNumber, language, params)
}

func (b *localBackend) Carriers(_ context.Context) ([]string, []string, error) {
	return b.stack.Service.Carriers(), b.stack.Service.Providers(), nil
}

func (b *localBackend) Close() error {
	return b.stack.Close()
}

// remoteBackend forwards every command to a running API server
type remoteBackend struct {
	client *cli.Client
}

func (b *remoteBackend) Track(ctx context.Context, reqs []tracking.Request) ([]tracking.Result, error) {
	if len(reqs) == 1 {
		result, err := b.client.Track(ctx, reqs[0])
		if err != nil {
			return nil, err
		}
		return []tracking.Result{*result}, nil
	}
	return b.client.TrackBatch(ctx, reqs)
}

func (b *remoteBackend) TrackingURL(ctx context.Context, carrier, trackingNumber, language string, params map[string]any) (string, error) {
	return b.client.TrackingURL(ctx, carrier, trackingNumber, language, params)
}

func (b *remoteBackend) Carriers(ctx context.Context) ([]string, []string, error) {
	resp, err := b.client.Carriers(ctx)
	if err != nil {
		return nil, nil, err
	}
	return resp.Carriers, resp.Providers, nil
}

func (b *remoteBackend) Close() error { return nil }

// initializeBackend sets up configuration, formatter and the backend of a
// CLI command
func initializeBackend(cmd *cobra.Command) (*cli.OutputFormatter, backend, error) {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return nil, nil, err
	}
	formatter := newFormatter(cmd, cfg)
	logger := newLogger(cfg, cmd.ErrOrStderr(), false)

	if serverURL != "" {
		client := cli.NewClientWithTimeout(serverURL, cfg.Fetch.Timeout+30*time.Second)
		client.SetAPIKey(apiKey)

		// Test connectivity
		if err := client.HealthCheck(cmd.Context()); err != nil {
			return formatter, nil, err
		}
		logger.Debug("Using remote server", "url", serverURL)
		return formatter, &remoteBackend{client: client}, nil
	}

	s, err := newStack(cmd.Context(), cfg, logger)
	if err != nil {
		return formatter, nil, err
	}
	return formatter, &localBackend{stack: s}, nil
}
