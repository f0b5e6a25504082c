// Package recommend implements the recommendation engine: nearest-neighbor
// user and movie lookups plus per-user top-rated rankings, all served from
// the persisted vector collections.
package recommend

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/embeddings"
	"github.com/reelpick/reel/pkg/movielens"
	"github.com/reelpick/reel/pkg/profile"
	"github.com/reelpick/reel/pkg/vector"
)

// Metadata field names shared by Rebuild and the query paths.
const (
	fieldTitle       = "title"
	fieldGenres      = "genres"
	fieldUserID      = "userId"
	fieldMovieID     = "movieId"
	fieldRating      = "rating"
	fieldMovies      = "movies"
	fieldDescription = "description"
)

// Options tunes engine behavior.
type Options struct {
	// TopK is the number of results per query. Defaults to 10.
	TopK int

	// IncludeSelf keeps the queried user in their own similar-user results.
	IncludeSelf bool

	// RebuildWorkers bounds the number of concurrent embedding calls during
	// Rebuild. Defaults to 4.
	RebuildWorkers int
}

// DefaultOptions returns the standard engine options.
func DefaultOptions() Options {
	return Options{
		TopK:           10,
		IncludeSelf:    true,
		RebuildWorkers: 4,
	}
}

// Collections groups the three vector collections the engine operates on.
type Collections struct {
	Movies   vector.Collection
	Ratings  vector.Collection
	Profiles vector.Collection
}

// Config holds the engine's dependencies.
type Config struct {
	// Catalog is the loaded movie catalog.
	Catalog *movielens.Catalog

	// Ratings is the loaded rating rows, used by Rebuild.
	Ratings []movielens.Rating

	// Collections are the engine's vector collections.
	Collections Collections

	// Embedder generates text embeddings for movie and profile records.
	Embedder embeddings.Embedder

	// Options tunes query and rebuild behavior.
	Options Options

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Engine answers similarity and ranking queries over the persisted
// collections. Outside of Rebuild it never writes.
type Engine struct {
	catalog  *movielens.Catalog
	ratings  []movielens.Rating
	coll     Collections
	embedder embeddings.Embedder
	opts     Options
	logger   *zap.Logger
}

// NewEngine validates dependencies and constructs the engine.
func NewEngine(c *Config) (*Engine, error) {
	if c.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if c.Collections.Movies == nil || c.Collections.Ratings == nil || c.Collections.Profiles == nil {
		return nil, fmt.Errorf("all three collections are required")
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	opts := c.Options
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.RebuildWorkers <= 0 {
		opts.RebuildWorkers = DefaultOptions().RebuildWorkers
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		catalog:  c.Catalog,
		ratings:  c.Ratings,
		coll:     c.Collections,
		embedder: c.Embedder,
		opts:     opts,
		logger:   logger,
	}, nil
}

// UserMatch is one similar-user result. Movies, Genres, and Rating degrade
// to "Unknown"/"N/A" when a stored record predates structured metadata and
// its description cannot be fully parsed.
type UserMatch struct {
	UserID string  `json:"userId"`
	Movies string  `json:"movies"`
	Genres string  `json:"genres"`
	Rating string  `json:"rating"`
	Score  float32 `json:"score"`
}

// MovieMatch is one similar-movie result.
type MovieMatch struct {
	MovieID string  `json:"movieId"`
	Title   string  `json:"title"`
	Genres  string  `json:"genres"`
	Score   float32 `json:"score"`
}

// RatedMovie is one entry of a user's top-rated ranking.
type RatedMovie struct {
	MovieID string  `json:"movieId"`
	Title   string  `json:"title"`
	Genres  string  `json:"genres"`
	Rating  float64 `json:"rating"`
}

// SimilarUsers returns the users whose profiles are nearest to the given
// user's stored profile embedding. The queried user appears in their own
// results unless Options.IncludeSelf is false.
func (e *Engine) SimilarUsers(ctx context.Context, userID string) ([]UserMatch, error) {
	docs, err := e.coll.Profiles.Get(ctx, []string{userID})
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if docs[0] == nil {
		return nil, fmt.Errorf("%w: no profile for user %s", ErrUserNotFound, userID)
	}

	k := e.opts.TopK
	if !e.opts.IncludeSelf {
		// Over-fetch by one so dropping the self match still yields TopK.
		k++
	}

	results, err := e.coll.Profiles.Query(ctx, docs[0].Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}

	matches := make([]UserMatch, 0, len(results))
	for _, r := range results {
		if !e.opts.IncludeSelf && r.ID == userID {
			continue
		}
		matches = append(matches, userMatch(r))
		if len(matches) == e.opts.TopK {
			break
		}
	}

	e.logger.Debug("similar users",
		zap.String("user_id", userID),
		zap.Int("matches", len(matches)),
	)

	return matches, nil
}

// userMatch recovers a result's fields from structured metadata, falling
// back to parsing the stored description for records written without it.
func userMatch(r vector.QueryResult) UserMatch {
	m := UserMatch{UserID: r.ID, Score: r.Score}

	movies, okMovies := r.Metadata[fieldMovies].(string)
	genres, okGenres := r.Metadata[fieldGenres].(string)
	if okMovies && okGenres {
		m.Movies = movies
		m.Genres = genres
		m.Rating = profile.RatingNA
		if v, ok := r.Metadata[fieldRating].(float64); ok {
			m.Rating = fmt.Sprintf("%.2f", v)
		}
		return m
	}

	desc, _ := r.Metadata[fieldDescription].(string)
	parsed := profile.ParseDescription(desc)
	m.Movies = parsed.Movies
	m.Genres = parsed.Genres
	m.Rating = parsed.Rating
	return m
}

// SimilarMovies returns the movies nearest to the named movie by genre
// similarity. The title match against the catalog is case-insensitive.
func (e *Engine) SimilarMovies(ctx context.Context, title string) ([]MovieMatch, error) {
	movie, ok := e.catalog.FindByTitle(title)
	if !ok {
		return nil, fmt.Errorf("%w: no catalog match for %q", ErrMovieNotFound, title)
	}

	embedding, err := e.embedder.Embed(ctx, "Genres: "+movie.Genres)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	results, err := e.coll.Movies.Query(ctx, embedding, e.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("querying movies: %w", err)
	}

	matches := make([]MovieMatch, 0, len(results))
	for _, r := range results {
		match := MovieMatch{MovieID: r.ID, Score: r.Score}
		match.Title, _ = r.Metadata[fieldTitle].(string)
		match.Genres, _ = r.Metadata[fieldGenres].(string)
		matches = append(matches, match)
	}

	e.logger.Debug("similar movies",
		zap.String("title", movie.Title),
		zap.Int("matches", len(matches)),
	)

	return matches, nil
}

// TopRated returns the user's highest-rated movies, ordered by descending
// rating with ties broken by ascending movie ID.
func (e *Engine) TopRated(ctx context.Context, userID string) ([]RatedMovie, error) {
	docs, err := e.coll.Ratings.GetByFilter(ctx, fieldUserID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading ratings: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no ratings for user %s", ErrUserNotFound, userID)
	}

	type row struct {
		movieID string
		rating  float64
	}
	rows := make([]row, 0, len(docs))
	for _, d := range docs {
		r := row{}
		r.movieID, _ = d.Metadata[fieldMovieID].(string)
		r.rating, _ = d.Metadata[fieldRating].(float64)
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].rating != rows[j].rating {
			return rows[i].rating > rows[j].rating
		}
		return rows[i].movieID < rows[j].movieID
	})

	if len(rows) > e.opts.TopK {
		rows = rows[:e.opts.TopK]
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.movieID
	}

	movieDocs, err := e.coll.Movies.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving movies: %w", err)
	}

	ranked := make([]RatedMovie, len(rows))
	for i, r := range rows {
		ranked[i] = RatedMovie{
			MovieID: r.movieID,
			Title:   profile.UnknownToken,
			Genres:  profile.UnknownToken,
			Rating:  r.rating,
		}
		if doc := movieDocs[i]; doc != nil {
			if title, ok := doc.Metadata[fieldTitle].(string); ok {
				ranked[i].Title = title
			}
			if genres, ok := doc.Metadata[fieldGenres].(string); ok {
				ranked[i].Genres = genres
			}
		}
	}

	e.logger.Debug("top rated",
		zap.String("user_id", userID),
		zap.Int("ranked", len(ranked)),
	)

	return ranked, nil
}
