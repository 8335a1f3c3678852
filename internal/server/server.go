package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/accountd/apiserver/config"
	"github.com/accountd/apiserver/internal/auth"
	"github.com/accountd/apiserver/internal/db"
	"github.com/accountd/apiserver/internal/handlers"
	"github.com/accountd/apiserver/internal/mq"
	"github.com/accountd/apiserver/internal/services"
	"github.com/accountd/apiserver/internal/storage"
	"github.com/accountd/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.mongodb.org/mongo-driver/mongo"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *mongo.Database
	broker     *mq.MQ
}

// New constructs a Server with its dependencies wired. Missing signing
// secret or database configuration aborts startup.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}

	database, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(database)
	userService := services.NewUserService(userRepo)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	avatarStorage, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = database.Client().Disconnect(context.Background())
		return nil, err
	}
	var avatars *services.AvatarService
	if avatarStorage != nil {
		if err := avatarStorage.EnsureBucket(ctx); err != nil {
			_ = database.Client().Disconnect(context.Background())
			return nil, err
		}
		avatars = services.NewAvatarService(avatarStorage)
	}

	broker, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = database.Client().Disconnect(context.Background())
		return nil, err
	}
	events := services.NewEventPublisher(broker)

	authMiddleware := handlers.RequireAuth(userService, tokens)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	router.Get("/", handlers.Home)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, events, tokens)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, avatars, events, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         database,
		broker:     broker,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Client().Disconnect(context.Background())
	}
	return s.httpServer.Close()
}
