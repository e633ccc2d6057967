// Package server is the composition root: it builds every dependency from
// config, mounts the routes and runs the HTTP server.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → sqlite.DB (repository.Store)
//	  → auth.TokenService, auth.PasswordService, auth.SecretBox
//	  → discogs.Client, oauthstate.Store
//	  → service.AuthService, RecordService, DiscogsService
//	  → handler.*Handler → chi routes
//
// Each layer only receives what it needs. Handlers never touch the database
// and services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/records-collector/internal/auth"
	"github.com/sakif/records-collector/internal/config"
	"github.com/sakif/records-collector/internal/discogs"
	"github.com/sakif/records-collector/internal/handler"
	"github.com/sakif/records-collector/internal/middleware"
	"github.com/sakif/records-collector/internal/oauthstate"
	sqliteRepo "github.com/sakif/records-collector/internal/repository/sqlite"
	"github.com/sakif/records-collector/internal/service"
)

// sweepInterval is how often expired pending authorizations are dropped.
const sweepInterval = time.Minute

// Option adjusts how New builds the server.
type Option func(*options)

type options struct {
	discogs func(*discogs.Config)
}

// WithDiscogsConfig lets the caller modify the Discogs client config before
// the client is built, e.g. to point it at a local fake.
func WithDiscogsConfig(fn func(*discogs.Config)) Option {
	return func(o *options) { o.discogs = fn }
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database handle and closes it when Start returns.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	pending *oauthstate.Store
}

// New opens the database (running migrations) and wires every layer.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tokens, err := auth.NewTokenService(cfg.SecretKey, cfg.JWTAlgorithm, cfg.AccessTokenTTL())
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	box, err := auth.NewSecretBox(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("creating secret box: %w", err)
	}

	db, err := sqliteRepo.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if !cfg.DiscogsConfigured() {
		logger.Warn("DISCOGS_CONSUMER_KEY/SECRET not set, Discogs endpoints will fail")
	}
	dcfg := discogs.Config{
		ConsumerKey:    cfg.DiscogsConsumerKey,
		ConsumerSecret: cfg.DiscogsConsumerSecret,
		CallbackURL:    cfg.DiscogsCallbackURL,
		UserAgent:      cfg.DiscogsUserAgent,
		Timeout:        cfg.DiscogsHTTPTimeout,
	}
	if o.discogs != nil {
		o.discogs(&dcfg)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		pending: oauthstate.New(cfg.OAuthStateTTL, cfg.OAuthStateMaxEntries),
	}

	authService := service.NewAuthService(db.Users(), tokens, auth.NewPasswordService(cfg.BcryptCost), logger)
	recordService := service.NewRecordService(db, logger)
	discogsService := service.NewDiscogsService(db, discogs.New(dcfg), box, s.pending, logger)

	s.setupRoutes(authService, recordService, discogsService)
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /health
//	POST   /api/v1/auth/register
//	POST   /api/v1/auth/login
//	GET    /api/v1/auth/me              (auth)
//	POST   /api/v1/records              (auth)
//	GET    /api/v1/records              (auth)
//	GET    /api/v1/records/{id}         (auth)
//	PUT    /api/v1/records/{id}         (auth)
//	DELETE /api/v1/records/{id}         (auth)
//	GET    /api/v1/discogs/status       (auth)
//	GET    /api/v1/discogs/connect      (auth)
//	GET    /api/v1/discogs/callback
//	POST   /api/v1/discogs/import       (auth)
//	POST   /api/v1/discogs/disconnect   (auth)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print it; Recoverer sits inside the
// logger so a panic is logged as a 500.
func (s *Server) setupRoutes(authService *service.AuthService, recordService *service.RecordService, discogsService *service.DiscogsService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	recordHandler := handler.NewRecordHandler(recordService, s.logger)
	discogsHandler := handler.NewDiscogsHandler(discogsService, authService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Get("/health", healthHandler.HandleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Get("/discogs/callback", discogsHandler.HandleCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authService))

			r.Get("/auth/me", authHandler.HandleMe)

			r.Route("/records", func(r chi.Router) {
				r.Post("/", recordHandler.HandleCreate)
				r.Get("/", recordHandler.HandleList)
				r.Get("/{id}", recordHandler.HandleGet)
				r.Put("/{id}", recordHandler.HandleUpdate)
				r.Delete("/{id}", recordHandler.HandleDelete)
			})

			r.Route("/discogs", func(r chi.Router) {
				r.Get("/status", discogsHandler.HandleStatus)
				r.Get("/connect", discogsHandler.HandleConnect)
				r.Post("/import", discogsHandler.HandleImport)
				r.Post("/disconnect", discogsHandler.HandleDisconnect)
			})
		})
	})
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on the way out.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start runs the HTTP server until ctx is cancelled or SIGINT/SIGTERM
// arrives, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// WriteTimeout covers a whole collection import, which pages through
	// Discogs inside one request.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go s.sweepPending(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DatabasePath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// sweepPending drops expired OAuth requests until ctx ends.
func (s *Server) sweepPending(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.pending.Sweep(); n > 0 {
				s.logger.Debug("expired oauth requests dropped", slog.Int("count", n))
			}
		}
	}
}
