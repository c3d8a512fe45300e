// Package main provides the entry point for the vdbctl CLI.
package main

import (
	"os"

	"github.com/ares-vector/vdb/cmd/vdbctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
