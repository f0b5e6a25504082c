package main

import (
	"os"

	reelcmder "github.com/reelpick/reel/cmd/reel"
)

func main() {
	cmd := reelcmder.NewReelCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
