package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// SignalHandler manages graceful shutdown of the HTTP server
type SignalHandler struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) *SignalHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SignalHandler{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Shutdown drains in-flight requests within the shutdown timeout
func (sh *SignalHandler) Shutdown() error {
	sh.logger.Info("Initiating graceful shutdown", "timeout", sh.shutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), sh.shutdownTimeout)
	defer cancel()

	if err := sh.server.Shutdown(ctx); err != nil {
		sh.logger.Error("Server forced to shutdown due to timeout", "error", err)
		return err
	}
	sh.logger.Info("Server gracefully shut down")
	return nil
}

// Serve runs the server on ln until ctx is cancelled or SIGINT/SIGTERM is
// received, then shuts it down gracefully
func (sh *SignalHandler) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		sh.logger.Info("Starting server", "addr", ln.Addr().String())
		if err := sh.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		sh.logger.Info("Received shutdown signal", "cause", context.Cause(ctx))
	}

	return sh.Shutdown()
}

// HandleSignals listens on server.Addr and serves until a shutdown signal
func HandleSignals(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	return NewSignalHandler(server, shutdownTimeout, logger).Serve(ctx, ln)
}
