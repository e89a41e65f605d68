// sockd is a dual-protocol socket server: one TCP listener serving both
// plain HTTP requests and WebSocket connections.
package main

import (
	"fmt"
	"os"

	"github.com/sockd/sockd/cmd/sockd/cmd"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, buildTime, gitCommit)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
