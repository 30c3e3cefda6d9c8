// pubctl generates deployment artifacts for a project by driving the
// project's worker process.
package main

import (
	"os"

	"github.com/HyphaGroup/pubctl/internal/cli"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	os.Exit(cli.Execute(Version))
}
