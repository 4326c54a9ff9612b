package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/worldwatch/intel-backend/internal/infrastructure/config"
)

// Server is the HTTP front of the pipeline.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        config.ServerConfig
}

// HealthChecker reports readiness of a named dependency.
type HealthChecker interface {
	Name() string
	Healthy(ctx context.Context) error
}

// NewServer builds the HTTP server. extraRoutes lets the caller mount
// additional handlers (the websocket stream) on the same mux.
func NewServer(
	cfg config.ServerConfig,
	handler *Handler,
	logger *slog.Logger,
	checkers []HealthChecker,
	extraRoutes map[string]http.Handler,
) *Server {
	mux := http.NewServeMux()
	handler.Routes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthHandler(checkers))
	for pattern, h := range extraRoutes {
		mux.Handle(pattern, h)
	}

	root := Chain(mux,
		RequestID(),
		Recovery(logger),
		Logging(logger),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * time.Minute,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// Start serves until the context is canceled, then drains within the
// configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(shutdownCtx)
}

func healthHandler(checkers []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(checkers))
		for _, c := range checkers {
			if err := c.Healthy(ctx); err != nil {
				checks[c.Name()] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[c.Name()] = "ok"
		}

		body := map[string]any{
			"status": "healthy",
			"checks": checks,
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		writeJSON(w, status, body)
	}
}
