/*
Package main provides the CLI entry point for mailshot.
*/
package main

import (
	"os"

	"github.com/shineum/mailshot-lite/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
