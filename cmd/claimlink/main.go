package main

import (
	"os"

	"github.com/surprise-envelope/backend/cmd/claimlink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
