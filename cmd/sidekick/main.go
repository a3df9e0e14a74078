package main

import (
	"os"

	"github.com/companygpt/sidekick/cmd/sidekick/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
