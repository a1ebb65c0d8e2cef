// Package main is the entry point for the oretrack field client.
package main

import (
	"os"

	"github.com/BrandonDHaskell/oretrack/cmd/oretrack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
