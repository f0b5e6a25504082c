package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/recommend"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSimilarUsers handles GET /similar/users/:id requests.
func (s *Server) handleSimilarUsers(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user id required"})
	}

	matches, err := s.engine.SimilarUsers(c.Context(), userID)
	if err != nil {
		return s.queryError(c, err)
	}

	return c.JSON(matches)
}

// handleSimilarMovies handles GET /similar/movies?title=... requests.
func (s *Server) handleSimilarMovies(c *fiber.Ctx) error {
	title := c.Query("title")
	if title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "title parameter is required"})
	}

	matches, err := s.engine.SimilarMovies(c.Context(), title)
	if err != nil {
		return s.queryError(c, err)
	}

	return c.JSON(matches)
}

// handleTopRated handles GET /users/:id/top-rated requests.
func (s *Server) handleTopRated(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user id required"})
	}

	ranked, err := s.engine.TopRated(c.Context(), userID)
	if err != nil {
		return s.queryError(c, err)
	}

	return c.JSON(ranked)
}

// queryError maps engine errors to HTTP status codes: unknown users and
// movies are 404s, everything else is a 500.
func (s *Server) queryError(c *fiber.Ctx, err error) error {
	if errors.Is(err, recommend.ErrUserNotFound) || errors.Is(err, recommend.ErrMovieNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}

	s.logger.Error("query failed",
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
}
