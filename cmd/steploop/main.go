// Command steploop answers a query by running the step loop against a
// JSON-mode chat model with a fixed tool set.
package main

import (
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
