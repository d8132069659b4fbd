package main

import (
	"context"
	"fmt"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/dockerrun"
	"github.com/djzelenak/espa-worker/util"
)

var dockerRunnerFunc = func() command.Runner {
	return command.ExecRunner{Logger: util.Logger()}
}

func dockerRunAction(c *cli.Context) error {
	arg := c.String("data")
	if arg == "" {
		arg = c.Args().First()
	}
	data, err := requestData(arg)
	if err != nil {
		return err
	}

	output, err := dockerrun.Run(context.Background(), dockerRunnerFunc(), string(data), c.String("image"), c.String("tag"))
	fmt.Fprint(c.App.Writer, output)
	return err
}
