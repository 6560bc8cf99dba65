package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
	"github.com/anthropic-openrouter-proxy/proxy/internal/handlers"
	"github.com/anthropic-openrouter-proxy/proxy/internal/middleware"
	"github.com/anthropic-openrouter-proxy/proxy/internal/resolver"
	"github.com/anthropic-openrouter-proxy/proxy/internal/upstream"
)

type Server struct {
	config   *config.Manager
	resolver *resolver.Resolver
	logger   *slog.Logger
	server   *http.Server
}

// New builds a server. The model alias table is loaded once here; the
// resolver snapshot is read-only for the process lifetime.
func New(cfgMgr *config.Manager, logger *slog.Logger) (*Server, error) {
	aliases, err := resolver.LoadAliasFile(cfgMgr.ModelsPath())
	if err != nil {
		return nil, fmt.Errorf("load model aliases: %w", err)
	}

	if len(aliases) > 0 {
		logger.Info("Loaded model alias table", "path", cfgMgr.ModelsPath(), "entries", len(aliases))
	}

	return &Server{
		config:   cfgMgr,
		resolver: resolver.New(aliases),
		logger:   logger,
	}, nil
}

// Start runs the server until an interrupt or SIGTERM, then shuts down
// gracefully with a bounded deadline.
func (s *Server) Start() error {
	cfg := s.config.Get()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.setupRoutes(),
	}

	s.logger.Info("Starting server", "address", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")

	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	client := upstream.NewClient(s.logger)

	proxyHandler := handlers.NewProxyHandler(s.config, s.resolver, client, s.logger)
	countHandler := handlers.NewCountTokensHandler(s.config, s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)

	chain := middleware.NewSet(s.logger).DefaultChain()

	mux.Handle("/health", chain.Handler(healthHandler))
	mux.Handle("/v1/messages", chain.Handler(proxyHandler))
	mux.Handle("/v1/messages/count_tokens", chain.Handler(countHandler))
	mux.Handle("/", chain.Handler(http.HandlerFunc(notFound)))

	return mux
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"not_found"}`))
}
