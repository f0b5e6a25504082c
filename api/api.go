// Package api provides the HTTP API server for querying recommendations.
package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/recommend"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}

// Recommender is the slice of the engine the API serves.
type Recommender interface {
	SimilarUsers(ctx context.Context, userID string) ([]recommend.UserMatch, error)
	SimilarMovies(ctx context.Context, title string) ([]recommend.MovieMatch, error)
	TopRated(ctx context.Context, userID string) ([]recommend.RatedMovie, error)
}

// Server is the API server for querying the reel recommendation engine.
type Server struct {
	config Config
	engine Recommender
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The engine is injected to allow
// sharing with the CLI commands.
func NewServer(config Config, engine Recommender, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: engine,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/similar/users/:id", s.handleSimilarUsers)
	app.Get("/similar/movies", s.handleSimilarMovies)
	app.Get("/users/:id/top-rated", s.handleTopRated)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
