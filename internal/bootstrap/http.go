package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
	httpx "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   config.HTTPConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// BuildHTTPHandler builds the status API handler from the available services.
func BuildHTTPHandler(cfg *HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	services := httpx.RouterServices{
		Checks:             make(map[string]httpx.HealthCheck, len(cfg.Services.Health)),
		CORSAllowedOrigins: cfg.Config.CORSAllowedOrigins,
		Logger:             logger,
	}
	// Typed nils must not reach the router's nil checks.
	if cfg.Services.LoadStatus != nil {
		services.Loads = cfg.Services.LoadStatus
	}
	if cfg.Services.ETLLog != nil {
		services.ETLLog = cfg.Services.ETLLog
	}
	for name, check := range cfg.Services.Health {
		services.Checks[name] = check
	}

	h := httpx.NewRouter(services)
	if cfg.Config.RequestTimeout > 0 {
		h = http.TimeoutHandler(h, cfg.Config.RequestTimeout, `{"error":"timeout","message":"request timed out"}`)
	}
	return h
}

// ServeHTTP runs the HTTP server until ctx is done, then shuts it down gracefully.
func ServeHTTP(ctx context.Context, cfg *HTTPServerConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Config.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           BuildHTTPHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Config.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWaitTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
