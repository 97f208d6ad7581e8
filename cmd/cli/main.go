package main

import (
	"os"

	"github.com/gresst/gresst/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
