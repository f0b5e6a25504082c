// Package servecmder runs the HTTP recommendation API.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reelpick/reel/api"
	"github.com/reelpick/reel/pkg/cliui"
	"github.com/reelpick/reel/pkg/config"
	"github.com/reelpick/reel/pkg/logger"
	"github.com/reelpick/reel/pkg/setup"
)

type serveCommander struct {
	listen     string
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
	topK       int

	configDir string
	debug     bool
	viper     *viper.Viper
	logger    *zap.Logger
}

var serveFlags = config.FlagSet{
	config.FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
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
	config.FlagTopK:            {Name: "top-k", Shorthand: "k", ViperKey: "recommend.top_k", Description: "Number of results per query"},
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagMovies, config.FlagRatings, config.FlagSQLite,
	config.FlagVectorStoreProv, config.FlagVectorStoreTgt,
	config.FlagVectorStoreHost, config.FlagVectorStorePort,
	config.FlagEmbeddingProv, config.FlagEmbeddingTgt, config.FlagEmbeddingModel,
	config.FlagTopK,
}

const serveLongDesc string = `Run the recommendation API server.

Serves recommendation queries over HTTP:
  GET /ping                   Health check
  GET /similar/users/:id      Users with similar taste
  GET /similar/movies?title=  Movies with similar genres
  GET /users/:id/top-rated    A user's top-rated movies

Queries run against the persisted vector database; run "reel rebuild"
before starting the server.

Examples:
  reel serve
  reel serve --listen :9090`

const serveShortDesc string = "Run the recommendation API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
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

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagMovies, &cmder.movies)
	config.AddStringFlag(cmd, serveFlags, config.FlagRatings, &cmder.ratings)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreProv, &cmder.storeProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreTgt, &cmder.storeTgt)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreHost, &cmder.storeHost)
	config.AddIntFlag(cmd, serveFlags, config.FlagVectorStorePort, &cmder.storePort)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embedProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embedTgt)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddIntFlag(cmd, serveFlags, config.FlagTopK, &cmder.topK)

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}

	var sys *setup.System
	err := cliui.Step(os.Stdout, "Loading data and connecting stores", func() error {
		var err error
		sys, err = setup.New(ctx, c.viper, c.configDir, c.logger)
		return err
	})
	if err != nil {
		return err
	}
	defer sys.Close()

	listen := c.viper.GetString("api.listen")
	server := api.NewServer(api.Config{ListenAddr: listen}, sys.Engine, c.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	fmt.Printf("  %s listening on %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(listen))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		c.logger.Info("shutting down", zap.Error(ctx.Err()))
	}

	if err := server.Shutdown(); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	return nil
}
