// Package server is the composition root: it opens the database, builds the
// services and handlers, and mounts them on a chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB (repository.Store)
//	             → PollLocks, TokenService, PasswordService
//	             → Auth/User/Poll/Vote/Comment/Tag/Feed services
//	             → handlers → routes
//
// Handlers never touch the database; services never touch HTTP.
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

	"github.com/sakif/citypolls/internal/auth"
	"github.com/sakif/citypolls/internal/config"
	"github.com/sakif/citypolls/internal/handler"
	"github.com/sakif/citypolls/internal/metrics"
	"github.com/sakif/citypolls/internal/middleware"
	sqliteRepo "github.com/sakif/citypolls/internal/repository/sqlite"
	"github.com/sakif/citypolls/internal/service"
)

// healthTimeout bounds the database ping behind /healthz.
const healthTimeout = 2 * time.Second

// Server owns the router and the database connection, which Start closes
// on shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database (running migrations) and wires every route.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
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

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                               → database ping
//	GET    /metrics                               → Prometheus scrape
//	POST   /api/auth/register | login | logout
//	--- everything below requires a token ---
//	POST   /api/polls/create
//	GET    /api/polls/feed | search | filter | my-polls | my-votes
//	GET    /api/polls/{id}
//	PUT    /api/polls/edit/{id}
//	DELETE /api/polls/delete/{id}
//	GET    /api/polls/{id}/comments
//	POST   /api/polls/{id}/comments
//	DELETE /api/comments/{id}
//	POST   /api/votes/cast
//	DELETE /api/votes/remove/{pollId}
//	GET    /api/tags/popular
//	GET    /api/profile/me
//	PUT    /api/profile/update-city
//	PATCH  /api/profile/update-password | update-username | toggle-mode
//	DELETE /api/profile/delete
//	GET    /api/profile/{username}
//	GET    /api/profile/{userId}/polls-created | polls-voted
//
// MIDDLEWARE ORDER MATTERS: RequestID runs first so the logger can print it;
// Recoverer sits inside the logger so a recovered panic is logged as a 500.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	locks := service.NewPollLocks(s.config.LockTimeout)

	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	userService := service.NewUserService(s.db, passwords, s.logger)
	pollService := service.NewPollService(s.db, locks, s.logger)
	voteService := service.NewVoteService(s.db, locks, s.logger)
	commentService := service.NewCommentService(s.db, locks, s.logger)
	tagService := service.NewTagService(s.db, s.config.PopularTagsLimit, s.logger)
	feedService := service.NewFeedService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.config.TokenTTL, s.logger)
	pollHandler := handler.NewPollHandler(pollService, feedService, s.logger)
	voteHandler := handler.NewVoteHandler(voteService, s.logger)
	commentHandler := handler.NewCommentHandler(commentService, s.logger)
	tagHandler := handler.NewTagHandler(tagService, s.logger)
	profileHandler := handler.NewProfileHandler(userService, feedService, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Route("/polls", func(r chi.Router) {
				r.Post("/create", pollHandler.HandleCreate)
				r.Get("/feed", pollHandler.HandleFeed)
				r.Get("/search", pollHandler.HandleSearch)
				r.Get("/filter", pollHandler.HandleFilter)
				r.Get("/my-polls", pollHandler.HandleMyPolls)
				r.Get("/my-votes", pollHandler.HandleMyVotes)
				r.Put("/edit/{id}", pollHandler.HandleEdit)
				r.Delete("/delete/{id}", pollHandler.HandleDelete)
				r.Get("/{id}", pollHandler.HandleGet)
				r.Get("/{id}/comments", commentHandler.HandleList)
				r.Post("/{id}/comments", commentHandler.HandleAdd)
			})

			r.Delete("/comments/{id}", commentHandler.HandleDelete)

			r.Post("/votes/cast", voteHandler.HandleCast)
			r.Delete("/votes/remove/{pollId}", voteHandler.HandleRemove)

			r.Get("/tags/popular", tagHandler.HandlePopular)

			r.Route("/profile", func(r chi.Router) {
				r.Get("/me", profileHandler.HandleMe)
				r.Put("/update-city", profileHandler.HandleUpdateCity)
				r.Patch("/update-password", profileHandler.HandleUpdatePassword)
				r.Patch("/update-username", profileHandler.HandleUpdateUsername)
				r.Patch("/toggle-mode", profileHandler.HandleToggleMode)
				r.Delete("/delete", profileHandler.HandleDeleteAccount)
				r.Get("/{username}", profileHandler.HandlePublicProfile)
				r.Get("/{userId}/polls-created", profileHandler.HandlePollsCreated)
				r.Get("/{userId}/polls-voted", profileHandler.HandlePollsVoted)
			})
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth reports 200 when the database answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
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

// Close releases the database. Start calls it on the way out; callers that
// never Start (tests) call it themselves.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting new connections
//  2. wait up to 30s for in-flight requests
//  3. close the database (checkpoints the WAL, releases the file)
func (s *Server) Start() error {
	defer s.Close()

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
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
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
