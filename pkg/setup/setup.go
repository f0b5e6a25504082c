// Package setup assembles a configured recommendation system from viper
// settings: data files, vector store, embedder, and engine. Commands share
// it so flag/env/config resolution behaves identically everywhere.
package setup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/dotdir"
	"github.com/reelpick/reel/pkg/embeddings"
	embeddingutils "github.com/reelpick/reel/pkg/embeddings/utils"
	"github.com/reelpick/reel/pkg/movielens"
	"github.com/reelpick/reel/pkg/recommend"
	"github.com/reelpick/reel/pkg/vector"
	vectorutils "github.com/reelpick/reel/pkg/vector/utils"
)

// Collection names inside the vector store.
const (
	MoviesCollection   = "movies"
	RatingsCollection  = "ratings"
	ProfilesCollection = "profiles"

	// dbFileName is the default SQLite database name inside .reel/.
	dbFileName = "reel.db"
)

// System bundles the assembled components. Close releases the store and
// embedder.
type System struct {
	Catalog  *movielens.Catalog
	Ratings  []movielens.Rating
	Store    vector.Store
	Embedder embeddings.Embedder
	Engine   *recommend.Engine
}

// New loads the CSV data and connects the configured vector store and
// embedder, then builds the engine over them.
func New(ctx context.Context, v *viper.Viper, configDir string, logger *zap.Logger) (*System, error) {
	catalog, err := movielens.LoadMovies(v.GetString("data.movies"), logger)
	if err != nil {
		return nil, fmt.Errorf("loading movies: %w", err)
	}

	ratings, err := movielens.LoadRatings(v.GetString("data.ratings"), logger)
	if err != nil {
		return nil, fmt.Errorf("loading ratings: %w", err)
	}

	store, err := newStore(v, configDir, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	coll := recommend.Collections{}
	for name, dst := range map[string]*vector.Collection{
		MoviesCollection:   &coll.Movies,
		RatingsCollection:  &coll.Ratings,
		ProfilesCollection: &coll.Profiles,
	} {
		*dst, err = store.Collection(ctx, name)
		if err != nil {
			store.Close()
			embedder.Close()
			return nil, fmt.Errorf("opening collection %s: %w", name, err)
		}
	}

	engine, err := recommend.NewEngine(&recommend.Config{
		Catalog:     catalog,
		Ratings:     ratings,
		Collections: coll,
		Embedder:    embedder,
		Options: recommend.Options{
			TopK:           v.GetInt("recommend.top_k"),
			IncludeSelf:    v.GetBool("recommend.include_self"),
			RebuildWorkers: v.GetInt("rebuild.workers"),
		},
		Logger: logger,
	})
	if err != nil {
		store.Close()
		embedder.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	return &System{
		Catalog:  catalog,
		Ratings:  ratings,
		Store:    store,
		Embedder: embedder,
		Engine:   engine,
	}, nil
}

// Close releases the store and embedder.
func (s *System) Close() error {
	err := s.Store.Close()
	if cerr := s.Embedder.Close(); err == nil {
		err = cerr
	}
	return err
}

// newStore opens the configured vector store backend. An unset SQLite path
// defaults to reel.db inside the resolved .reel/ directory.
func newStore(v *viper.Viper, configDir string, logger *zap.Logger) (vector.Store, error) {
	path := v.GetString("storage.sqlite_path")
	if path == "" && v.GetString("vector_store.provider") == "sqlite" {
		target, err := dotdir.NewManager().Target(configDir)
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
		path = filepath.Join(target, dbFileName)
	}

	store, err := vectorutils.NewVectorStore(&vectorutils.NewVectorStoreOpts{
		ProviderType: v.GetString("vector_store.provider"),
		Path:         path,
		TargetURL:    v.GetString("vector_store.target"),
		Host:         v.GetString("vector_store.host"),
		Port:         v.GetInt("vector_store.port"),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	return store, nil
}
