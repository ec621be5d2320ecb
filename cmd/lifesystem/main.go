// Package main is the single-binary entrypoint for the Life System.
// One binary runs the API, the sweeps and every admin command.
package main

import "github.com/sololeveling/lifesystem/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
