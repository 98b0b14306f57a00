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

	"github.com/onemin-relay/relay/internal/config"
	"github.com/onemin-relay/relay/internal/handlers"
	"github.com/onemin-relay/relay/internal/media"
	"github.com/onemin-relay/relay/internal/middleware"
	"github.com/onemin-relay/relay/internal/onemin"
	"github.com/onemin-relay/relay/internal/ratelimit"
	"github.com/onemin-relay/relay/internal/tokens"
)

type Server struct {
	config *config.Manager
	logger *slog.Logger
	server *http.Server
	store  *ratelimit.MemoryStore
}

func New(configManager *config.Manager, logger *slog.Logger) *Server {
	return &Server{
		config: configManager,
		logger: logger,
	}
}

func (s *Server) Start() error {
	cfg := s.config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	mux := s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("Starting server", "address", addr, "api_url", cfg.OneMin.APIURL)

	// Start server in goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.store != nil {
		s.store.Close()
	}

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

func (s *Server) setupRoutes(cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()

	gateway := onemin.NewClient(cfg.OneMin.APIURL, cfg.OneMin.StreamingAPIURL, s.logger)
	mediaRelay := media.NewRelay(cfg.OneMin.AssetURL, s.logger)
	estimator := tokens.NewEstimator(s.logger)

	var store ratelimit.Store
	if !cfg.RateLimit.Disabled {
		s.store = ratelimit.NewMemoryStore()
		store = s.store
	}

	chatLimiter := ratelimit.NewLimiter(store, ratelimit.ChatConfig(), s.logger)
	imageLimiter := ratelimit.NewLimiter(store, ratelimit.ImageConfig(), s.logger)

	chatHandler := handlers.NewChatHandler(s.config, gateway, mediaRelay, estimator, chatLimiter, s.logger)
	responsesHandler := handlers.NewResponsesHandler(s.config, gateway, mediaRelay, estimator, chatLimiter, s.logger)
	imagesHandler := handlers.NewImagesHandler(gateway, imageLimiter, s.logger)
	modelsHandler := handlers.NewModelsHandler(s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)
	rootHandler := handlers.NewRootHandler(s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)

	// Preflights are answered by the CORS middleware, so the routes are
	// registered without method patterns and enforce methods themselves.
	mux.Handle("/v1/chat/completions", middlewareSet.DefaultChain().Handler(chatHandler))
	mux.Handle("/v1/responses", middlewareSet.DefaultChain().Handler(responsesHandler))
	mux.Handle("/v1/images/generations", middlewareSet.DefaultChain().Handler(imagesHandler))
	mux.Handle("/v1/models", middlewareSet.PublicChain().Handler(modelsHandler))
	mux.Handle("/health", middlewareSet.PublicChain().Handler(healthHandler))
	mux.Handle("/", middlewareSet.PublicChain().Handler(rootHandler))

	return mux
}
