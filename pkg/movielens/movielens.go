// Package movielens loads the MovieLens CSV dataset (movies.csv, ratings.csv)
// into in-memory catalogs used by the recommendation engine.
package movielens

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// GenreSeparator is the delimiter used inside a movie's genres field.
const GenreSeparator = "|"

// Movie is a single row from movies.csv. Genres is kept as the raw
// "|"-delimited tag string from the file; use GenreList to split it.
type Movie struct {
	ID     string
	Title  string
	Genres string
}

// GenreList splits the raw genres field into individual tags.
func (m Movie) GenreList() []string {
	if m.Genres == "" {
		return nil
	}
	return strings.Split(m.Genres, GenreSeparator)
}

// Rating is a single row from ratings.csv. Rows keep the order they appear
// in the file; downstream aggregation depends on that order.
type Rating struct {
	UserID  string
	MovieID string
	Value   float64
}

// Catalog is the loaded movie table with id and title lookups.
type Catalog struct {
	movies  []Movie
	byID    map[string]int
	byTitle map[string]int
}

// NewCatalog builds a Catalog from the given movies. Later duplicates of an
// id or title are ignored; the first row wins.
func NewCatalog(movies []Movie) *Catalog {
	c := &Catalog{
		movies:  movies,
		byID:    make(map[string]int, len(movies)),
		byTitle: make(map[string]int, len(movies)),
	}
	for i, m := range movies {
		if _, ok := c.byID[m.ID]; !ok {
			c.byID[m.ID] = i
		}
		key := strings.ToLower(m.Title)
		if _, ok := c.byTitle[key]; !ok {
			c.byTitle[key] = i
		}
	}
	return c
}

// Movies returns all movies in file order.
func (c *Catalog) Movies() []Movie {
	return c.movies
}

// Len returns the number of movies in the catalog.
func (c *Catalog) Len() int {
	return len(c.movies)
}

// FindByID looks a movie up by its id.
func (c *Catalog) FindByID(id string) (Movie, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Movie{}, false
	}
	return c.movies[i], true
}

// FindByTitle looks a movie up by exact title, case-insensitively.
func (c *Catalog) FindByTitle(title string) (Movie, bool) {
	i, ok := c.byTitle[strings.ToLower(title)]
	if !ok {
		return Movie{}, false
	}
	return c.movies[i], true
}

// LoadMovies reads movies.csv (movieId,title,genres) from path.
func LoadMovies(path string, logger *zap.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening movies file: %w", err)
	}
	defer f.Close()

	movies, err := ReadMovies(f, logger)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return NewCatalog(movies), nil
}

// ReadMovies parses movie rows from r. The first row is treated as a header.
// Malformed rows are skipped with a warning rather than aborting the load.
func ReadMovies(r io.Reader, logger *zap.Logger) ([]Movie, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var movies []Movie
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing movies csv: %w", err)
		}

		line++
		if line == 1 && isHeader(record, "movieId") {
			continue
		}

		if len(record) < 3 || record[0] == "" {
			logger.Warn("skipping malformed movie row", zap.Int("line", line))
			continue
		}

		movies = append(movies, Movie{
			ID:     record[0],
			Title:  record[1],
			Genres: record[2],
		})
	}

	logger.Debug("loaded movies", zap.Int("count", len(movies)))
	return movies, nil
}

// LoadRatings reads ratings.csv (userId,movieId,rating[,timestamp]) from path.
func LoadRatings(path string, logger *zap.Logger) ([]Rating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ratings file: %w", err)
	}
	defer f.Close()

	ratings, err := ReadRatings(f, logger)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ratings, nil
}

// ReadRatings parses rating rows from r, preserving file order. The optional
// timestamp column is ignored.
func ReadRatings(r io.Reader, logger *zap.Logger) ([]Rating, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var ratings []Rating
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing ratings csv: %w", err)
		}

		line++
		if line == 1 && isHeader(record, "userId") {
			continue
		}

		if len(record) < 3 {
			logger.Warn("skipping malformed rating row", zap.Int("line", line))
			continue
		}

		value, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			logger.Warn("skipping rating row with non-numeric value",
				zap.Int("line", line),
				zap.String("value", record[2]),
			)
			continue
		}

		ratings = append(ratings, Rating{
			UserID:  record[0],
			MovieID: record[1],
			Value:   value,
		})
	}

	logger.Debug("loaded ratings", zap.Int("count", len(ratings)))
	return ratings, nil
}

func isHeader(record []string, first string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), first)
}
