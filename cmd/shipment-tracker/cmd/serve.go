package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"shipment-tracker/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking API server",
	Long: `Serve the tracking API over HTTP.

ENDPOINTS:
    GET    /api/health
    GET    /api/carriers
    GET    /api/carriers/{carrier}/url/{number}
    GET    /api/carriers/{carrier}/track/{number}
    GET    /api/cache/stats
    POST   /api/track                                  (API key)
    DELETE /api/carriers/{carrier}/track/{number}/cache (API key)
    GET    /metrics

Set SHIPMENT_TRACKER_SERVER_API_KEY to require a bearer token on the
routes marked above.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger := newLogger(cfg, cmd.ErrOrStderr(), true)
	logger.Info("Starting shipment tracker server",
		"version", Version,
		"build_date", BuildDate)

	s, err := newStack(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize tracking", "error", err)
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to release resources", "error", err)
		}
	}()

	if cfg.Server.APIKey == "" {
		logger.Warn("No API key configured, batch tracking and cache invalidation are open")
	}

	handler := server.NewRouter(server.Options{
		Service:  s.Service,
		DB:       s.DB,
		Metrics:  s.Metrics,
		Gatherer: s.Gatherer,
		APIKey:   cfg.Server.APIKey,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: handler,

		// Timeouts
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Fetch.Timeout + cfg.Fetch.Headless.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Listening", "address", srv.Addr, "cache_disabled", cfg.Cache.Disabled, "cache_ttl", cfg.Cache.TTL)
	if err := server.HandleSignals(cmd.Context(), srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
