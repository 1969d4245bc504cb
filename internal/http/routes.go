// Package httpx serves the read-only pipeline status API.
package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Loads  LoadReader   // Optional: disables /api/loads when nil
	ETLLog ETLLogReader // Optional: disables /api/etl when nil
	// Checks run by /readyz.
	Checks       map[string]HealthCheck
	CheckTimeout time.Duration
	// CORSAllowedOrigins enables CORS for the listed origins.
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter creates the HTTP router with its middleware chain applied.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	health := &HealthHandlers{Checks: services.Checks, Timeout: services.CheckTimeout}
	mux.HandleFunc("GET "+healthPath, health.Live)
	mux.HandleFunc("HEAD "+healthPath, health.Live)
	mux.HandleFunc("GET /readyz", health.Ready)

	if services.Loads != nil {
		registerLoadRoutes(mux, &LoadHandlers{Svc: services.Loads, Logger: logger})
	}
	if services.ETLLog != nil {
		registerETLLogRoutes(mux, &ETLLogHandlers{Svc: services.ETLLog, Logger: logger})
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNoRoute})
	})

	return Chain(mux,
		RequestID(),
		Recover(logger),
		Logging(logger),
		CORS(services.CORSAllowedOrigins),
	)
}

func registerLoadRoutes(mux *http.ServeMux, h *LoadHandlers) {
	mux.HandleFunc("GET /api/loads/{loadId}", h.Get)
	mux.HandleFunc("GET /api/loads/{loadId}/status", h.Status)
}

func registerETLLogRoutes(mux *http.ServeMux, h *ETLLogHandlers) {
	mux.HandleFunc("GET /api/etl/logs/{id...}", h.History)
	mux.HandleFunc("GET /api/etl/latest/{id...}", h.Latest)
}
