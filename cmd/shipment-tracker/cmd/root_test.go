package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/fetch"
	"shipment-tracker/internal/metrics"
	"shipment-tracker/internal/server"
)

const glsURL = "https://gls-group.eu/DE/de/paketverfolgung?match=12345"

// resetFlags restores every flag to its default, since rootCmd and its
// subcommands are shared between tests
func resetFlags() {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	for _, c := range append(rootCmd.Commands(), rootCmd) {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
	}
}

// isolate runs the test in an empty directory with a private database
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("NO_COLOR", "1")
	t.Setenv("SHIPMENT_TRACKER_DATABASE_PATH", filepath.Join(dir, "tracker.db"))
	return dir
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeCommandContext(t, context.Background(), args...)
}

func executeCommandContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 8080, ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "server.db")},
		Cache:    config.CacheConfig{TTL: time.Minute},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
		Fetch: config.FetchConfig{
			Timeout:  5 * time.Second,
			Headless: config.HeadlessConfig{Timeout: 10 * time.Second},
		},
		CLI: config.CLIConfig{Format: "table"},
	}
}

// startServer runs the API on a local stack and returns its URL
func startServer(t *testing.T, apiKey string) string {
	t.Helper()
	cfg := testConfig(t)
	logger := slog.New(slog.DiscardHandler)

	s, err := newStack(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newStack() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(server.NewRouter(server.Options{
		Service:  s.Service,
		DB:       s.DB,
		Metrics:  s.Metrics,
		Gatherer: s.Gatherer,
		APIKey:   apiKey,
		Logger:   logger,
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRootCommand_Version(t *testing.T) {
	isolate(t)
	stdout, _, err := executeCommand(t, "--version")
	if err != nil {
		t.Fatalf("Version command failed: %v", err)
	}
	if !strings.Contains(stdout, Version) {
		t.Errorf("Version output missing %s, got: %s", Version, stdout)
	}
}

func TestURLCommand(t *testing.T) {
	isolate(t)

	stdout, _, err := executeCommand(t, "url", "GLS", "12345")
	if err != nil {
		t.Fatalf("url command failed: %v", err)
	}
	if strings.TrimSpace(stdout) != glsURL {
		t.Errorf("Expected %s, got %q", glsURL, stdout)
	}
}

func TestURLCommand_JSON(t *testing.T) {
	isolate(t)

	stdout, _, err := executeCommand(t, "url", "gls", "12345", "--lang", "en", "--format", "json")
	if err != nil {
		t.Fatalf("url command failed: %v", err)
	}

	var resp struct {
		Carrier     string `json:"carrier"`
		TrackingURL string `json:"tracking_url"`
	}
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, stdout)
	}
	if resp.TrackingURL != "https://gls-group.eu/DE/en/parcel-tracking?match=12345" {
		t.Errorf("Unexpected tracking URL: %s", resp.TrackingURL)
	}
}

func TestURLCommand_FormatFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("SHIPMENT_TRACKER_CLI_FORMAT", "json")

	stdout, _, err := executeCommand(t, "url", "GLS", "12345")
	if err != nil {
		t.Fatalf("url command failed: %v", err)
	}
	if !strings.Contains(stdout, `"tracking_url": "`+glsURL+`"`) {
		t.Errorf("Expected JSON output, got: %s", stdout)
	}
}

func TestCarriersCommand(t *testing.T) {
	isolate(t)

	stdout, _, err := executeCommand(t, "carriers", "-q")
	if err != nil {
		t.Fatalf("carriers command failed: %v", err)
	}

	names := strings.Fields(stdout)
	for _, expected := range []string{"DHL", "DHLExpress", "UPS", "USPS", "GLS", "Fedex", "PostAT", "PostCH", "PostNord", "Dachser"} {
		if !slices.Contains(names, expected) {
			t.Errorf("Expected carrier %s in output: %v", expected, names)
		}
	}
}

func TestTrackCommand_UnknownCarrier(t *testing.T) {
	isolate(t)

	_, stderr, err := executeCommand(t, "track", "Nope", "123")
	if err == nil {
		t.Fatal("Expected error for unknown carrier")
	}
	if !strings.Contains(err.Error(), "unsupported carrier") {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Error") {
		t.Errorf("Expected error on stderr, got: %s", stderr)
	}
}

func TestTrackCommand_InvalidParam(t *testing.T) {
	isolate(t)

	_, _, err := executeCommand(t, "track", "GLS", "123", "--param", "broken")
	if err == nil || !strings.Contains(err.Error(), "expected key=value") {
		t.Errorf("Expected param error, got %v", err)
	}
}

func TestTrackCommand_RequiresNumber(t *testing.T) {
	isolate(t)

	if _, _, err := executeCommand(t, "track", "GLS"); err == nil {
		t.Error("Expected error without tracking number")
	}
}

func TestCommands_InvalidConfiguration(t *testing.T) {
	isolate(t)
	t.Setenv("SHIPMENT_TRACKER_FETCH_RETRIES", "99")

	_, _, err := executeCommand(t, "carriers")
	if err == nil || !strings.Contains(err.Error(), "configuration error") {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestRemoteBackend(t *testing.T) {
	isolate(t)
	url := startServer(t, "")

	stdout, _, err := executeCommand(t, "--server", url, "url", "GLS", "12345")
	if err != nil {
		t.Fatalf("remote url command failed: %v", err)
	}
	if strings.TrimSpace(stdout) != glsURL {
		t.Errorf("Expected %s, got %q", glsURL, stdout)
	}

	stdout, _, err = executeCommand(t, "--server", url, "carriers", "--format", "json")
	if err != nil {
		t.Fatalf("remote carriers command failed: %v", err)
	}
	var resp struct {
		Carriers  []string `json:"carriers"`
		Providers []string `json:"providers"`
	}
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, stdout)
	}
	if !slices.Contains(resp.Carriers, "PostNord") {
		t.Errorf("Expected PostNord in %v", resp.Carriers)
	}
	if !slices.Contains(resp.Providers, fetch.DefaultHTTP) || !slices.Contains(resp.Providers, fetch.AltHTTP) {
		t.Errorf("Expected http providers in %v", resp.Providers)
	}
}

func TestRemoteBackend_Batch(t *testing.T) {
	isolate(t)
	url := startServer(t, "secret")

	_, _, err := executeCommand(t, "--server", url, "track", "Nope", "1", "2", "-q")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected unauthorized error without API key, got %v", err)
	}

	stdout, _, err := executeCommand(t, "--server", url, "--api-key", "secret", "track", "Nope", "1", "2", "-q")
	if err == nil || !strings.Contains(err.Error(), "2 of 2 shipments failed") {
		t.Errorf("Expected batch failure summary, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected one line per shipment, got %q", stdout)
	}
	if !strings.HasSuffix(lines[0], "error") {
		t.Errorf("Expected error status, got %q", lines[0])
	}
}

func TestRemoteBackend_Unreachable(t *testing.T) {
	isolate(t)

	_, _, err := executeCommand(t, "--server", "http://127.0.0.1:1", "carriers")
	if err == nil {
		t.Error("Expected error for unreachable server")
	}
}

func TestServeCommand_ShutsDownOnCancel(t *testing.T) {
	isolate(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(500*time.Millisecond, cancel)

	_, stderr, err := executeCommandContext(t, ctx, "serve", "--host", "127.0.0.1", "--port", strconv.Itoa(port))
	if err != nil {
		t.Fatalf("serve command failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Server stopped gracefully") {
		t.Errorf("Expected graceful shutdown log, got: %s", stderr)
	}
}

func TestBuildProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.OAuth2 = config.OAuth2Config{
		TokenURL:     "https://auth.example.com/token",
		ClientID:     "id",
		ClientSecret: "secret",
	}
	m := metrics.New(prometheus.NewRegistry())

	providers, headless, err := buildProviders(context.Background(), cfg, m, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("buildProviders() error = %v", err)
	}
	if headless != nil {
		t.Error("Expected no headless provider when disabled")
	}

	expected := []string{fetch.AltHTTP, fetch.DefaultHTTP, fetch.OAuth2HTTP}
	if names := providers.Names(); !slices.Equal(names, expected) {
		t.Errorf("Expected providers %v, got %v", expected, names)
	}
	if _, err := providers.Get(fetch.Headless); err == nil {
		t.Error("Expected headless provider to be missing")
	}
}

func TestBuildProviders_Headless(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.Headless.Enabled = true
	m := metrics.New(prometheus.NewRegistry())

	providers, headless, err := buildProviders(context.Background(), cfg, m, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("buildProviders() error = %v", err)
	}
	if headless == nil {
		t.Fatal("Expected headless provider")
	}
	defer headless.Close()

	if _, err := providers.Get(fetch.Headless); err != nil {
		t.Errorf("Expected headless provider to be registered: %v", err)
	}
}
