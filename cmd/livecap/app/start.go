package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livecap/livecap/internal"
	"github.com/livecap/livecap/pkg/logging"
)

// SetupServer sets up router, middleware, and server, given koanf configuration.
func SetupServer(ctx context.Context, cfg *ServerConfig, layout *outputLayout, gate *admissionGate) (*Server, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.SlogMiddleWare(slog.Default()))
	r.Use(middleware.Recoverer)
	r.Use(addVersionAndCORSHeaders)
	r.Use(prometheusMiddleWare)

	// Add prometheus counters
	r.Mount("/metrics", promhttp.Handler())

	server := Server{
		Router: r,
		Cfg:    cfg,
		layout: layout,
		gate:   gate,
	}

	if err := server.Routes(ctx); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	slog.Info("livecap starting", "version", internal.GetVersion(), "port", cfg.Port)

	return &server, nil
}
