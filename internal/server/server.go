// Package server wires stores, services, handlers and middleware into one
// router and runs it.
//
// COMPOSITION ROOT:
// main.go opens the long-lived resources (database, session cache, mail
// sender) and hands them over in Deps. New builds everything that depends
// on them:
//
//	sqlite.DB ─┬─> UserService ─────> AuthHandler, UserHandler
//	           └─> QuestionService ─> ChannelHandler
//	SessionStore ──> UserService, RequireAuth
//	Sender ──> notify.Dispatcher ──> QuestionService
//
// Tests build a Server the same way with an in-memory database and a
// memory session store, then drive Handler() through httptest.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/consulthub/internal/auth"
	"github.com/sakif/consulthub/internal/cache"
	"github.com/sakif/consulthub/internal/config"
	"github.com/sakif/consulthub/internal/handler"
	"github.com/sakif/consulthub/internal/middleware"
	"github.com/sakif/consulthub/internal/notify"
	sqliteRepo "github.com/sakif/consulthub/internal/repository/sqlite"
	"github.com/sakif/consulthub/internal/service"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Deps are the resources the server takes ownership of. Close releases
// them.
type Deps struct {
	DB       *sqliteRepo.DB
	Sessions cache.SessionStore
	Sender   notify.Sender
}

// Server is the HTTP server and everything it owns.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	deps    Deps
	metrics *middleware.Metrics
}

// New assembles services and handlers and registers routes.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	if deps.DB == nil || deps.Sessions == nil || deps.Sender == nil {
		return nil, errors.New("server: database, session store and sender are required")
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		deps:    deps,
		metrics: middleware.NewMetrics(),
	}

	dispatcher, err := notify.NewDispatcher(deps.Sender, logger, s.metrics.Notifications)
	if err != nil {
		return nil, fmt.Errorf("server: creating dispatcher: %w", err)
	}

	passwords := auth.NewPasswordService(cfg.BcryptCost)
	users := service.NewUserService(deps.DB, deps.Sessions, passwords, cfg.EmailDomain, logger)
	questions := service.NewQuestionService(deps.DB, deps.DB, dispatcher, logger)

	s.setupRoutes(users, questions)
	return s, nil
}

// setupRoutes registers every route.
//
// ROUTE TABLE:
//
//	GET  /                                       welcome
//	GET  /status                                 liveness
//	GET  /metrics                                Prometheus
//	POST /register                               create account
//	POST /api/auth/login                         open session
//	--- everything below requires X-Api-Token ---
//	POST /api/auth/logout                        close session
//	GET  /api/general                            302 → general feed
//	GET  /api/users/{username}                   profile
//	PUT  /api/users                              update field/notifications
//	PUT  /api/users/notifications                update notifications
//	GET  /api/channel                            all=true feed or 302
//	POST /api/channel                            post a question
//	GET  /api/channel/{channel}                  feed
//	GET  /api/channel/{channel}/multi            cross-query, many users
//	GET  /api/channel/{channel}/questions/{id}   id-or-title lookup
//	GET  /api/channel/{channel}/{username}[/{id}] cross-query, one user
//	POST /api/channel/{channel}/{id}/response    respond
//	GET  /api/responses/{responseID}             response lookup
//
// StripSlashes runs first, so "/api/channel/" and "/api/channel" are the
// same route.
func (s *Server) setupRoutes(users *service.UserService, questions *service.QuestionService) {
	r := s.router

	r.Use(chimiddleware.StripSlashes)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(s.metrics.Instrument)
	r.Use(chimiddleware.Recoverer)

	authHandler := handler.NewAuthHandler(users, s.logger)
	userHandler := handler.NewUserHandler(users)
	channelHandler := handler.NewChannelHandler(questions)

	r.Get("/", handler.HandleIndex)
	r.Get("/status", handler.HandleStatus)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.With(handler.RequireJSON).Post("/register", authHandler.HandleRegister)

	r.Route("/api", func(r chi.Router) {
		r.With(handler.RequireJSON).Post("/auth/login", authHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.deps.Sessions, s.deps.DB, s.logger))

			r.Post("/auth/logout", authHandler.HandleLogout)
			r.Get("/general", channelHandler.HandleGeneral)

			r.Get("/users/{username}", userHandler.HandleGet)
			r.With(handler.RequireJSON).Put("/users", userHandler.HandleUpdate)
			r.With(handler.RequireJSON).Put("/users/notifications", userHandler.HandleUpdateNotifications)

			r.Get("/channel", channelHandler.HandleRoot)
			r.With(handler.RequireJSON).Post("/channel", channelHandler.HandlePost)
			r.Get("/channel/{channel}", channelHandler.HandleFeed)
			r.Get("/channel/{channel}/multi", channelHandler.HandleMulti)
			r.Get("/channel/{channel}/questions/{idOrTitle}", channelHandler.HandleQuestion)
			r.Get("/channel/{channel}/{username}", channelHandler.HandleActivity)
			r.Get("/channel/{channel}/{username}/{idOrTitle}", channelHandler.HandleActivity)
			r.With(handler.RequireJSON).Post("/channel/{channel}/{questionID}/response", channelHandler.HandleRespond)

			r.Get("/responses/{responseID}", channelHandler.HandleResponse)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and, when it holds a connection, the
// session store.
func (s *Server) Close() error {
	var errs []error
	if c, ok := s.deps.Sessions.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session store: %w", err))
		}
	}
	if err := s.deps.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes everything the server owns.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("cache", s.config.CacheBackend),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
