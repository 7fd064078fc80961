// Command askflow answers questions from a document index and the web, asks
// follow-up questions when unsure, and can serve itself as an MCP tool.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
