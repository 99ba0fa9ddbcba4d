package server

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/handlers"
	"github.com/kvallam/MedVaultAPI/internal/middleware"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

type Server struct {
	httpServer *http.Server
	logger     *logger_i.Logger
}

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopWorkers      func()
	CloseServices    func()
	StopExecution    chan bool
}

// New wires the routes. Protected routes go through the middleware chain;
// /files is deliberately outside it because the signed URL is the
// authorization, and /health and /metrics stay open for probes and scrapers.
func New(listenAddr string, h *handlers.Handler, chain *middleware.Chain) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         listenAddr,
			Handler:      NewRouter(h, chain),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger: logger_i.NewLogger("Server"),
	}
}

// NewRouter builds the route table on its own so tests can serve it directly.
func NewRouter(h *handlers.Handler, chain *middleware.Chain) *chi.Mux {
	r := chi.NewRouter()

	r.Post("/records/upload", chain.Wrap(h.UploadRecord))
	r.Get("/records/{id}/url", chain.Wrap(h.RecordURL))
	r.Delete("/records/{id}", chain.Wrap(h.DeleteRecord))

	r.Post("/ai/search", chain.Wrap(h.Search))
	r.Post("/ai/ask", chain.Wrap(h.Ask))
	r.Post("/ai/process/{id}", chain.Wrap(h.Reprocess))
	r.Get("/ai/agents/status", chain.Wrap(h.AgentStatus))

	r.Get("/files/{ref}", h.ServeFile)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	return r
}

// ListenAndServe blocks until the server stops. A closed server is a normal
// return, not an error.
func (s *Server) ListenAndServe() {
	s.logger.Info("Server is listening at", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Server crashed", "error", err.Error(), "addr", s.httpServer.Addr)
	}
}

// ShutDownHandler blocks on the signal channel, then drains: stop accepting
// requests, stop the workers, close the services, release main.
func (s *Server) ShutDownHandler(shutdownParams ShutdownParams) {
	state := <-shutdownParams.GracefulShutdown
	s.logger.Info("Server is shutting down", "signal", state.String())

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		s.httpServer.SetKeepAlivesEnabled(false)

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Could not shutdown gracefully", "error", err)
		}

		shutdownParams.StopWorkers()
		shutdownParams.CloseServices()
		close(shutdownParams.StopExecution)
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Gracefully shut down")
	case <-ctx.Done():
		s.logger.Info("Force shut down")
		os.Exit(1)
	}
}
