// Command keplerctl evaluates orbits offline against the built-in scene or a
// scene file, without a running server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
