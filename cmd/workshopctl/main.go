// Command workshopctl ingests a session's uploads and queries its context
// without running the HTTP server.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
