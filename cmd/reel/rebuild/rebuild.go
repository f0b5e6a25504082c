// Package rebuildcmder provides the rebuild command that clears and
// repopulates the vector database from MovieLens CSV files.
package rebuildcmder

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/cliui"
	"github.com/reelpick/reel/pkg/config"
	"github.com/reelpick/reel/pkg/dotdir"
	"github.com/reelpick/reel/pkg/logger"
	"github.com/reelpick/reel/pkg/recommend"
	"github.com/reelpick/reel/pkg/setup"
)

type rebuildCommander struct {
	movies     string
	ratings    string
	sqlitePath string
	storeProv  string
	storeTgt   string
	storeHost  string
	storePort  int
	embedProv  string
	embedTgt   string
	embedModel string
	workers    int

	configDir string
	debug     bool
	viper     *viper.Viper
	logger    *zap.Logger
}

var rebuildFlags = config.FlagSet{
	config.FlagMovies:          {Name: "movies", Shorthand: "m", ViperKey: "data.movies", Description: "Path to the MovieLens movies CSV"},
	config.FlagRatings:         {Name: "ratings", Shorthand: "r", ViperKey: "data.ratings", Description: "Path to the MovieLens ratings CSV"},
	config.FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite vector database (default: .reel/reel.db)"},
	config.FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite, chroma, qdrant)"},
	config.FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Chroma server URL"},
	config.FlagVectorStoreHost: {Name: "vector-store-host", ViperKey: "vector_store.host", Description: "Qdrant gRPC host"},
	config.FlagVectorStorePort: {Name: "vector-store-port", ViperKey: "vector_store.port", Description: "Qdrant gRPC port"},
	config.FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama)"},
	config.FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding API URL"},
	config.FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	config.FlagRebuildWorkers:  {Name: "workers", Shorthand: "w", ViperKey: "rebuild.workers", Description: "Concurrent embedding workers"},
}

var rebuildFlagKeys = []string{
	config.FlagMovies, config.FlagRatings, config.FlagSQLite,
	config.FlagVectorStoreProv, config.FlagVectorStoreTgt,
	config.FlagVectorStoreHost, config.FlagVectorStorePort,
	config.FlagEmbeddingProv, config.FlagEmbeddingTgt, config.FlagEmbeddingModel,
	config.FlagRebuildWorkers,
}

const rebuildLongDesc string = `Clear and repopulate the vector database.

Reads the configured movies and ratings CSVs, derives per-user profiles,
generates embeddings, and writes the movies, ratings, and profiles
collections from scratch. Any previously stored records are removed first.

Examples:
  reel rebuild
  reel rebuild --movies data/movies.csv --ratings data/ratings.csv
  reel rebuild --vector-store-provider chroma --vector-store-target http://localhost:8000`

const rebuildShortDesc string = "Clear and repopulate the vector database"

func NewRebuildCmd() *cobra.Command {
	cmder := &rebuildCommander{}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: rebuildShortDesc,
		Long:  rebuildLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, rebuildFlags, rebuildFlagKeys)
			cmder.viper = v

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, rebuildFlags, config.FlagMovies, &cmder.movies)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagRatings, &cmder.ratings)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagVectorStoreProv, &cmder.storeProv)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagVectorStoreTgt, &cmder.storeTgt)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagVectorStoreHost, &cmder.storeHost)
	config.AddIntFlag(cmd, rebuildFlags, config.FlagVectorStorePort, &cmder.storePort)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagEmbeddingProv, &cmder.embedProv)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagEmbeddingTgt, &cmder.embedTgt)
	config.AddStringFlag(cmd, rebuildFlags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddIntFlag(cmd, rebuildFlags, config.FlagRebuildWorkers, &cmder.workers)

	return cmd
}

func (c *rebuildCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}

	ddm := dotdir.NewManager()
	lock, err := ddm.AcquireLock(c.configDir)
	if err != nil {
		return fmt.Errorf("acquiring rebuild lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	var sys *setup.System
	err = cliui.Step(os.Stdout, "Loading data and connecting stores", func() error {
		var err error
		sys, err = setup.New(ctx, c.viper, c.configDir, c.logger)
		return err
	})
	if err != nil {
		return err
	}
	defer sys.Close()

	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("Movies:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d", sys.Catalog.Len())),
	)
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Rating rows:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d", len(sys.Ratings))),
	)

	var stats recommend.RebuildStats
	err = cliui.Step(os.Stdout, "Rebuilding collections", func() error {
		var err error
		stats, err = sys.Engine.Rebuild(ctx)
		return err
	})
	if err != nil {
		return err
	}

	state := &dotdir.RebuildState{
		CompletedAt: time.Now().UTC(),
		Movies:      stats.Movies,
		Ratings:     stats.Ratings,
		Profiles:    stats.Profiles,
	}
	if err := ddm.SaveRebuildState(state, c.configDir); err != nil {
		c.logger.Warn("could not save rebuild state", zap.Error(err))
	}

	fmt.Printf("\n  %s movies=%d ratings=%d profiles=%d\n\n",
		cliui.SuccessMark, stats.Movies, stats.Ratings, stats.Profiles)

	return nil
}
