package main

import (
	"fmt"

	cli "gopkg.in/urfave/cli.v1"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func versionAction(c *cli.Context) {
	fmt.Fprintln(c.App.Writer, version)
}
