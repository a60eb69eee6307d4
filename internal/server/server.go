// Package server wires the application together and runs the HTTP server.
//
// COMPOSITION ROOT:
// New is the one place where concrete types meet:
//
//	config → sqlite.DB ─┬→ AuthService   → AuthHandler
//	                    ├→ RecipeService → RecipeHandler
//	                    └→ CommentService ┘
//	config → upload.Store (local or S3) → RecipeService, templates
//	config → TokenService → SessionManager → LoadSession middleware
//
// Every other package receives its dependencies through a constructor and
// never builds its own.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/config"
	"github.com/sakif/recipe-share/internal/handler"
	"github.com/sakif/recipe-share/internal/middleware"
	sqliteRepo "github.com/sakif/recipe-share/internal/repository/sqlite"
	"github.com/sakif/recipe-share/internal/service"
	"github.com/sakif/recipe-share/internal/upload"
	"github.com/sakif/recipe-share/web"
)

// Server owns the router and every long-lived resource behind it.
//
// RESOURCE MANAGEMENT:
// The database handle and the background goroutines (session janitor,
// rate-limiter sweeper) live as long as the Server. Start closes them on
// shutdown; callers that only use Handler, such as tests, call Close.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	images   upload.Store
	sessions *auth.SessionManager
	limiter  *middleware.RateLimiter
}

// New opens the database and the image store and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	images, err := newImageStore(ctx, cfg.Upload)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening image store: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Session.Secret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		images:   images,
		sessions: auth.NewSessionManager(db, tokens, cfg.Session.MaxAge, logger),
		limiter:  middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// newImageStore picks the upload backend named by cfg.Driver.
func newImageStore(ctx context.Context, cfg config.Upload) (upload.Store, error) {
	switch cfg.Driver {
	case config.DriverS3:
		return upload.NewS3Store(ctx, upload.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Endpoint:      cfg.S3.Endpoint,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
	default:
		return upload.NewLocalStore(cfg.Dir)
	}
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	GET       /healthz              liveness, pings the database
//	GET       /uploads/{name}       stored images (local store only)
//	GET       /                     recipe list, ?search=
//	GET/POST  /register             sign-up         (POST rate limited)
//	GET/POST  /login                login           (POST rate limited)
//	GET/POST  /recipe/{id}          detail, add comment (POST needs a login)
//	GET       /logout               auth
//	GET       /dashboard            auth
//	GET/POST  /post                 auth
//	GET/POST  /recipe/{id}/edit     auth + author
//	POST      /recipe/delete/{id}   auth + author
//	POST      /recipe/{id}/like     auth
//
// MIDDLEWARE ORDER:
// RequestID and RealIP come first so the logger and the rate limiter see
// the request id and the client address. RealIP only runs behind a trusted
// proxy (server.trustProxy); otherwise a client could pick its own address
// through X-Forwarded-For. Cross-origin POSTs are refused before the session
// is loaded. LoadSession runs on every page so templates know whether
// someone is logged in.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	if s.config.Server.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	cookie := auth.CookieOptions{Secure: s.config.Session.SecureCookie}

	passwords, err := auth.NewPasswordService(s.config.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	recipeService := service.NewRecipeService(s.db, s.db, s.db, s.db, s.images, s.logger)
	commentService := service.NewCommentService(s.db, s.db, s.logger)
	authService := service.NewAuthService(s.db, passwords, s.sessions, s.logger)

	view, err := handler.NewRenderer(web.Templates, recipeService.ImageURL, s.logger)
	if err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}

	authHandler := handler.NewAuthHandler(authService, view, cookie, s.logger)
	recipeHandler := handler.NewRecipeHandler(recipeService, commentService, view, s.config.Server.MaxUploadBytes, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	if local, ok := s.images.(*upload.LocalStore); ok {
		uploadsHandler := handler.NewUploadsHandler(local, view)
		s.router.Get("/uploads/{name}", uploadsHandler.HandleImage)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(http.NewCrossOriginProtection().Handler)
		r.Use(auth.LoadSession(s.sessions, cookie, s.logger))

		r.Get("/", recipeHandler.HandleHome)
		r.Get("/recipe/{id}", recipeHandler.HandleDetail)
		r.Post("/recipe/{id}", recipeHandler.HandleComment)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Get("/register", authHandler.HandleRegisterForm)
			r.Post("/register", authHandler.HandleRegister)
			r.Get("/login", authHandler.HandleLoginForm)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(handler.DenyAnonymous()))

			r.Get("/logout", authHandler.HandleLogout)
			r.Get("/dashboard", recipeHandler.HandleDashboard)
			r.Get("/post", recipeHandler.HandleNewForm)
			r.Post("/post", recipeHandler.HandleCreate)
			r.Get("/recipe/{id}/edit", recipeHandler.HandleEditForm)
			r.Post("/recipe/{id}/edit", recipeHandler.HandleUpdate)
			r.Post("/recipe/delete/{id}", recipeHandler.HandleDelete)
			r.Post("/recipe/{id}/like", recipeHandler.HandleLike)
		})
	})

	s.router.NotFound(view.NotFound)

	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// runBackground starts the session janitor and the rate-limiter sweeper.
// Both stop when ctx is cancelled.
func (s *Server) runBackground(ctx context.Context) {
	if interval := s.config.Session.PurgeInterval; interval > 0 {
		go s.sessions.RunJanitor(ctx, interval)
	}
	go s.limiter.RunSweeper(ctx, time.Minute)
}

// Start runs the HTTP server until SIGINT or SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. stop accepting connections
//  2. wait up to server.timeouts.shutdownTimeout for in-flight requests
//  3. stop the background goroutines and close the database
func (s *Server) Start() error {
	defer s.db.Close()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	s.runBackground(bgCtx)

	t := s.config.Server.Timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadTimeout:       t.ReadTimeout,
		ReadHeaderTimeout: t.ReadHeaderTimeout,
		WriteTimeout:      t.WriteTimeout,
		IdleTimeout:       t.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
			slog.String("uploads", s.config.Upload.Driver),
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

		ctx, cancel := context.WithTimeout(context.Background(), t.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
