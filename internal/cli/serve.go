package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/chatflow"
)

// ShutdownTimeout bounds the graceful shutdown of the HTTP server.
const ShutdownTimeout = 5 * time.Second

// Serve runs the HTTP API on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, app *chatflow.App, ln net.Listener, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting chatflow server", "addr", ln.Addr().String())
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		return err

	case <-ctx.Done():
		logger.Info("Start shutdown...")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			if err := srv.Close(); err != nil {
				return err
			}
		}
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("chatflow server stopped gracefully")
		return nil
	}
}
