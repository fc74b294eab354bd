// Package main provides the entry point for the semdex CLI.
package main

import (
	"os"

	"github.com/semdex/semdex/cmd/semdex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
