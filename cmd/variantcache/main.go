// Command variantcache serves and pre-generates cached image variants.
package main

import (
	"os"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
