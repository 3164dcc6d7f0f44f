package main

import (
	"os"

	"github.com/jdelaire/openwa/cmd/openwa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
