package main

import (
	"os"

	"github.com/avrebarra/lumora/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
