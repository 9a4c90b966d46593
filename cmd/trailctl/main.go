// Package main is the entry point for the aitrail CLI tool.
package main

import (
	"os"

	"github.com/calm-red-fox/aitrail/cmd/trailctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
