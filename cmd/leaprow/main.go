// Package main provides the leaprow command-line tool.
package main

import (
	"os"

	"github.com/leapstack-labs/leaprow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
