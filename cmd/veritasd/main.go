package main

import (
	"os"

	"github.com/veritas-kanban/core/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
