// Package main provides the entry point for the amanfind CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanfind/cmd/amanfind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
