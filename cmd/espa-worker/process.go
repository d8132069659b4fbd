package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/djzelenak/espa-worker/model"
)

var stdin io.Reader = os.Stdin

// requestData returns arg, or all of stdin when arg is empty or "-"
func requestData(arg string) ([]byte, error) {
	if arg != "" && arg != "-" {
		return []byte(arg), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, errors.Wrap(err, "reading product requests from stdin")
	}
	return data, nil
}

func processAction(c *cli.Context) error {
	data, err := requestData(c.Args().First())
	if err != nil {
		return err
	}
	reqs, err := model.ParseProductRequests(data)
	if err != nil {
		return err
	}

	session, err := openWorkerFunc(c.String("config"))
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return session.Worker.ProcessAll(ctx, reqs)
}
