// Package main is the entry point for the glkbridge CLI.
//
// Usage:
//
//	glkbridge [flags] <command> [subcommand] [args]
//
// Commands:
//
//	config     - Configuration management (contexts, services)
//	host       - Serve a plain-text display over WebSocket
//	run        - Run the demo interpreter against a display
//	files      - Inspect and sweep the file-reference ledger
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/glkbridge/cmd/glkbridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
