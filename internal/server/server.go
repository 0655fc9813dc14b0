package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/perfect-api/apiserver/config"
	"github.com/perfect-api/apiserver/internal/handlers"
	"github.com/perfect-api/apiserver/internal/obs"
	"github.com/perfect-api/apiserver/types"
)

const requestTimeout = 60 * time.Second

// ErrMissingJWTSecret is returned by New when JWT_SECRET is unset.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	components *Components
	limiter    *RateLimiter
	logger     *slog.Logger
}

// New wires the application and its router. It refuses to start without a
// signing secret.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	components, err := NewComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	limiter := NewRateLimiter(cfg.RateLimit)
	router := newRouter(cfg, components, limiter, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		components: components,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

func newRouter(cfg config.Config, c *Components, limiter *RateLimiter, logger *slog.Logger) *chi.Mux {
	authenticate := handlers.Authenticate(c.Tokens)
	requireAdmin := handlers.RequireRole(c.Users, types.RoleAdmin, logger)
	authHandler := handlers.NewAuthHandler(c.Auth, c.Metrics, logger)
	userHandler := handlers.NewUserHandler(c.Users, c.Exports, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		limiter.CapturePeer,
		middleware.RealIP,
		obs.RequestLogger(logger),
		middleware.Recoverer,
		c.Metrics.Instrument,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           600,
		}),
		limiter.Middleware,
		middleware.Timeout(requestTimeout),
	)

	router.Get("/healthz", handlers.Healthz(c.Store, logger))
	router.Method(http.MethodGet, "/metrics", c.Metrics.Handler())

	api := func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler, authenticate)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userHandler, authenticate, requireAdmin)
		})
	}
	router.Route("/api/v1", api)
	router.Group(api)

	return router
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Sweep(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests and releases the store and brokers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.components.Close())
}
