// Package server is the wiring layer: it builds the services on top of the
// store, hands them to the handlers, mounts the routes and runs the HTTP
// server until a shutdown signal arrives.
//
// DEPENDENCY FLOW:
//
//	main.go: config, logger, collaborators (events, visit cache, uploads, tokens)
//	server.New: sqlite.DB → services → handlers → routes
//
// All dependencies are assembled here (the composition root) so no other
// package constructs its own.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/tapcard/internal/auth"
	"github.com/sakif/tapcard/internal/events"
	"github.com/sakif/tapcard/internal/handler"
	"github.com/sakif/tapcard/internal/middleware"
	sqliteRepo "github.com/sakif/tapcard/internal/repository/sqlite"
	"github.com/sakif/tapcard/internal/service"
	"github.com/sakif/tapcard/internal/storage"
)

// Config holds what the server itself needs to know.
type Config struct {
	Port          int
	DBPath        string
	PublicBaseURL string
}

// Collaborators are the pluggable outside systems. Events and Dedupe may be
// nil (no-op); a nil Uploader turns image uploads off. Tokens is required.
type Collaborators struct {
	Tokens   *auth.TokenService
	Events   events.Publisher
	Dedupe   service.VisitDeduper
	Uploader storage.Uploader
}

// Server owns the database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database, builds every service and mounts the routes.
func New(cfg Config, collab Collaborators, logger *slog.Logger) (*Server, error) {
	if collab.Tokens == nil {
		return nil, errors.New("server: a token service is required")
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes(collab)
	return s, nil
}

// Handler exposes the router so tests can drive it with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database. Start calls it on the way out.
func (s *Server) Close() error { return s.db.Close() }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                              liveness + DB ping
//	GET    /c/{code}                             resolve a tapped/scanned code
//	GET    /api/p/{slug}                         public profile
//	---- RequireAuth ----
//	GET    /api/me
//	POST   /api/claim/{code}
//	GET    /api/dashboard
//	GET    /api/profiles/{id}
//	PATCH  /api/profiles/{id}
//	DELETE /api/profiles/{id}
//	POST   /api/profiles/{id}/images/{kind}
//	GET    /api/profiles/{id}/stats
//	---- RequireAdmin ----
//	POST   /api/admin/users
//	POST   /api/admin/batches                    GET /api/admin/batches
//	POST   /api/admin/batches/generate
//	DELETE /api/admin/batches/{id}               GET /api/admin/batches/{id}/stats
//	GET    /api/admin/codes
//	POST   /api/admin/codes/bulk-delete | archive | copied
//	GET    /api/admin/codes/{code}/qr.png
//	POST   /api/admin/codes/{id}/repair
//	POST   /api/admin/sweep
//	GET    /api/admin/profiles
//
// MIDDLEWARE ORDER MATTERS: RequestID must run before Logger so the log
// line carries the id, and RealIP before anything reads RemoteAddr.
func (s *Server) setupRoutes(collab Collaborators) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	lifecycle := service.NewLifecycle(s.db, collab.Events, s.logger)
	sweeper := service.NewSweeper(s.db, lifecycle, s.logger)
	batches := service.NewBatchService(s.db, collab.Events, s.config.PublicBaseURL, s.logger)
	profiles := service.NewProfileService(s.db, sweeper, collab.Uploader, s.logger)
	resolver := service.NewResolver(s.db, lifecycle, collab.Dedupe, s.logger)
	accounts := service.NewAccountService(s.db, collab.Tokens, s.logger)

	profileHandler := handler.NewProfileHandler(lifecycle, profiles, s.logger)
	resolveHandler := handler.NewResolveHandler(resolver, s.logger)
	adminHandler := handler.NewAdminHandler(batches, lifecycle, sweeper, profiles, s.logger)
	accountHandler := handler.NewAccountHandler(accounts, s.logger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/c/{code}", resolveHandler.HandleResolve)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/p/{slug}", profileHandler.HandlePublic)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(collab.Tokens))

			r.Get("/me", accountHandler.HandleMe)
			r.Post("/claim/{code}", profileHandler.HandleClaim)
			r.Get("/dashboard", profileHandler.HandleDashboard)

			r.Route("/profiles/{id}", func(r chi.Router) {
				r.Get("/", profileHandler.HandleGet)
				r.Patch("/", profileHandler.HandleUpdate)
				r.Delete("/", profileHandler.HandleDelete)
				r.Post("/images/{kind}", profileHandler.HandleImage)
				r.Get("/stats", profileHandler.HandleStats)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				r.Post("/users", accountHandler.HandleCreateUser)

				r.Get("/batches", adminHandler.HandleListBatches)
				r.Post("/batches", adminHandler.HandleCreateBatch)
				r.Post("/batches/generate", adminHandler.HandleGenerateBatch)
				r.Delete("/batches/{id}", adminHandler.HandleDeleteBatch)
				r.Get("/batches/{id}/stats", adminHandler.HandleBatchStats)

				r.Get("/codes", adminHandler.HandleListCodes)
				r.Post("/codes/bulk-delete", adminHandler.HandleBulkDelete)
				r.Post("/codes/archive", adminHandler.HandleArchive)
				r.Post("/codes/copied", adminHandler.HandleMarkCopied)
				r.Get("/codes/{code}/qr.png", adminHandler.HandleQR)
				r.Post("/codes/{id}/repair", adminHandler.HandleRepair)

				r.Post("/sweep", adminHandler.HandleSweep)
				r.Get("/profiles", adminHandler.HandleListProfiles)
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start runs the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database (flushes the WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("public_url", s.config.PublicBaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
