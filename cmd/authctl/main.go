// Command authctl runs and operates the authentication service.
package main

import (
	"fmt"
	"os"
)

// version is stamped with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
