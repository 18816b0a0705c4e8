// Package panel serves the HTTP admin API: submitting chat commands,
// resolving confirmations, and inspecting workflows, products, and orders.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/storefrontlabs/adminflow/internal/engine"
	"github.com/storefrontlabs/adminflow/internal/store"
)

// Deps holds the dependencies for the panel server.
type Deps struct {
	Store        store.Store
	Orchestrator *engine.Orchestrator
	Logger       *slog.Logger
}

// Server serves the admin JSON API.
type Server struct {
	deps Deps
	http *http.Server
}

// NewServer creates a panel server listening on addr.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	s := &Server{deps: deps}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/confirm", s.handleConfirm)

	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/events", s.handleWorkflowEvents)

	mux.HandleFunc("GET /api/products", s.handleListProducts)
	mux.HandleFunc("GET /api/products/{sku}", s.handleGetProduct)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/orders/{number}", s.handleGetOrder)

	mux.HandleFunc("GET /api/health", s.handleHealth)

	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("panel listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
