// Command plugincore validates plugin manifests and reports how a directory
// of plugins resolves.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
