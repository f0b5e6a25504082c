// Package reelcmder
package reelcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/reelpick/reel/cmd/reel/config"
	rebuildcmder "github.com/reelpick/reel/cmd/reel/rebuild"
	recommendcmder "github.com/reelpick/reel/cmd/reel/recommend"
	servecmder "github.com/reelpick/reel/cmd/reel/serve"
	versioncmder "github.com/reelpick/reel/cmd/reel/version"
)

const reelLongDesc string = `Reel is a local movie recommender over MovieLens-style CSV data.

Build the vector database, then query it:
  reel rebuild       Clear and repopulate the vector database from CSVs
  reel recommend     Interactive recommendation session
  reel serve         Run the HTTP API server
  reel config        Manage persistent configuration`

const reelShortDesc string = "Reel - Movie Recommendations"

func NewReelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reel",
		Short: reelShortDesc,
		Long:  reelLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .reel/ config directory")

	// Add subcommands
	cmd.AddCommand(rebuildcmder.NewRebuildCmd())
	cmd.AddCommand(recommendcmder.NewRecommendCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
