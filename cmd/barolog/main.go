// Command barolog records barometric pressure readings into a local store
// and keeps them in sync with a per-user cloud replica.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
