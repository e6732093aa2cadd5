// Package main provides the buddyctl command line tool.
//
// Usage:
//
//	buddyctl [flags] <command> [args]
//
// Commands:
//
//	ask      - Ask the search service a question
//	submit   - Submit a link or a file to the search corpus
//	voices   - List the synthesizer voices and the narration voice
//	connect  - Open an interactive conversation with a buddy server
//
// Configuration is read from the environment and an optional .env file.
package main

import (
	"fmt"
	"os"

	"github.com/satriahrh/buddy/cmd/buddyctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
