// Command dernek is the desktop data store engine for the association
// management application: local-first change journal, remote sync, and
// consistent backup/restore.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
