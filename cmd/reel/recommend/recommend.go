// Package recommendcmder provides the interactive recommendation session.
package recommendcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
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
	"github.com/reelpick/reel/pkg/utils"
)

type recommendCommander struct {
	movies      string
	ratings     string
	sqlitePath  string
	storeProv   string
	storeTgt    string
	storeHost   string
	storePort   int
	embedProv   string
	embedTgt    string
	embedModel  string
	topK        int
	includeSelf bool
	forceSave   bool

	configDir string
	debug     bool
	viper     *viper.Viper
	logger    *zap.Logger
}

var recommendFlags = config.FlagSet{
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
	config.FlagIncludeSelf:     {Name: "include-self", ViperKey: "recommend.include_self", Description: "Keep the queried user in their own results"},
}

var recommendFlagKeys = []string{
	config.FlagMovies, config.FlagRatings, config.FlagSQLite,
	config.FlagVectorStoreProv, config.FlagVectorStoreTgt,
	config.FlagVectorStoreHost, config.FlagVectorStorePort,
	config.FlagEmbeddingProv, config.FlagEmbeddingTgt, config.FlagEmbeddingModel,
	config.FlagTopK, config.FlagIncludeSelf,
}

const recommendLongDesc string = `Start an interactive recommendation session.

Prompts for a query mode, then for a user id or movie title:
  users     Find users with similar taste to a user
  movies    Find movies similar to a movie by genre
  top       Show a user's top-rated movies

Queries run against the persisted vector database; run "reel rebuild"
first (or pass --force-save to rebuild before the session starts).

Examples:
  reel recommend
  reel recommend --force-save
  reel recommend --top-k 5`

const recommendShortDesc string = "Interactive recommendation session"

func NewRecommendCmd() *cobra.Command {
	cmder := &recommendCommander{}

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: recommendShortDesc,
		Long:  recommendLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, recommendFlags, recommendFlagKeys)
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

	config.AddStringFlag(cmd, recommendFlags, config.FlagMovies, &cmder.movies)
	config.AddStringFlag(cmd, recommendFlags, config.FlagRatings, &cmder.ratings)
	config.AddStringFlag(cmd, recommendFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, recommendFlags, config.FlagVectorStoreProv, &cmder.storeProv)
	config.AddStringFlag(cmd, recommendFlags, config.FlagVectorStoreTgt, &cmder.storeTgt)
	config.AddStringFlag(cmd, recommendFlags, config.FlagVectorStoreHost, &cmder.storeHost)
	config.AddIntFlag(cmd, recommendFlags, config.FlagVectorStorePort, &cmder.storePort)
	config.AddStringFlag(cmd, recommendFlags, config.FlagEmbeddingProv, &cmder.embedProv)
	config.AddStringFlag(cmd, recommendFlags, config.FlagEmbeddingTgt, &cmder.embedTgt)
	config.AddStringFlag(cmd, recommendFlags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddIntFlag(cmd, recommendFlags, config.FlagTopK, &cmder.topK)
	config.AddBoolFlag(cmd, recommendFlags, config.FlagIncludeSelf, &cmder.includeSelf)

	cmd.Flags().BoolVar(&cmder.forceSave, "force-save", false, "Rebuild the vector database before the session")

	return cmd
}

func (c *recommendCommander) run(ctx context.Context) error {
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

	ddm := dotdir.NewManager()

	if c.forceSave {
		lock, err := ddm.AcquireLock(c.configDir)
		if err != nil {
			return fmt.Errorf("acquiring rebuild lock: %w", err)
		}

		var stats recommend.RebuildStats
		err = cliui.Step(os.Stdout, "Rebuilding collections", func() error {
			var err error
			stats, err = sys.Engine.Rebuild(ctx)
			return err
		})
		_ = lock.Release()
		if err != nil {
			return err
		}

		_ = ddm.SaveRebuildState(&dotdir.RebuildState{
			CompletedAt: time.Now().UTC(),
			Movies:      stats.Movies,
			Ratings:     stats.Ratings,
			Profiles:    stats.Profiles,
		}, c.configDir)
	} else {
		state, err := ddm.LoadRebuildState(c.configDir)
		if err != nil {
			c.logger.Warn("could not read rebuild state", zap.Error(err))
		}
		if state == nil {
			fmt.Printf("  %s\n", cliui.DimStyle.Render(
				"No rebuild recorded yet. Run \"reel rebuild\" if queries come back empty."))
		}
	}

	fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render(
		"Modes: users <id>, movies <title>, top <id>. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(cliui.Prompt("reel> "))
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" || input == "exit" || input == "quit" {
			break
		}

		mode, arg, _ := strings.Cut(input, " ")
		arg = strings.TrimSpace(arg)

		if arg == "" {
			// Two-step entry: prompt for the argument separately, the way
			// the session reads when modes are typed bare.
			fmt.Print(cliui.Prompt(promptFor(mode)))
			if !scanner.Scan() {
				break
			}
			arg = strings.TrimSpace(scanner.Text())
			if arg == "" {
				continue
			}
		}

		c.dispatch(ctx, sys, mode, arg)
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

func promptFor(mode string) string {
	switch mode {
	case "movies":
		return "title> "
	default:
		return "user id> "
	}
}

func (c *recommendCommander) dispatch(ctx context.Context, sys *setup.System, mode, arg string) {
	switch mode {
	case "users":
		matches, err := sys.Engine.SimilarUsers(ctx, arg)
		if c.reportErr(err) {
			return
		}
		for i, m := range matches {
			fmt.Printf("  %s %s\n", cliui.Rank(i+1), cliui.Title("User "+m.UserID))
			fmt.Printf("      %s\n", cliui.Detail("Movies: "+utils.Truncate(m.Movies, 96)))
			fmt.Printf("      %s\n", cliui.Detail(fmt.Sprintf("Genres: %s | Average Rating: %s", m.Genres, m.Rating)))
		}

	case "movies":
		matches, err := sys.Engine.SimilarMovies(ctx, arg)
		if c.reportErr(err) {
			return
		}
		for i, m := range matches {
			fmt.Printf("  %s %s %s\n", cliui.Rank(i+1), cliui.Title(m.Title), cliui.Detail("("+m.Genres+")"))
		}

	case "top":
		ranked, err := sys.Engine.TopRated(ctx, arg)
		if c.reportErr(err) {
			return
		}
		for i, m := range ranked {
			fmt.Printf("  %s %s %s %s\n",
				cliui.Rank(i+1),
				cliui.Title(m.Title),
				cliui.Detail("("+m.Genres+")"),
				cliui.Detail(fmt.Sprintf("%.1f", m.Rating)),
			)
		}

	default:
		fmt.Printf("  %s unknown mode %q (expected users, movies, or top)\n", cliui.FailMark, mode)
	}
}

// reportErr prints query errors to the session instead of ending it.
// Returns true if an error was handled.
func (c *recommendCommander) reportErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, recommend.ErrUserNotFound) || errors.Is(err, recommend.ErrMovieNotFound) {
		fmt.Printf("  %s %v\n", cliui.FailMark, err)
		return true
	}

	c.logger.Error("query failed", zap.Error(err))
	fmt.Printf("  %s %v\n", cliui.FailMark, err)
	return true
}
