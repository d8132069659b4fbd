package main

import (
	"context"
	"fmt"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/djzelenak/espa-worker/api"
	"github.com/djzelenak/espa-worker/util"
	"github.com/djzelenak/espa-worker/worker"
)

//scheduleAction starts the polling loop and an http server to control it
func scheduleAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})
	portStr := util.GetPortStr()

	session, err := openWorkerFunc(c.String("config"))
	if err != nil {
		return err
	}
	defer session.Close()

	apiURL := session.Worker.Config.APIURL()
	if apiURL == "" {
		return &api.APIError{Message: "ESPA_API is not defined!"}
	}
	scheduler := worker.NewScheduler(session.Worker, api.NewServer(apiURL), util.GetDispositionFrequency())

	//Create the channel that sends the start/stop messages to the Scheduler.
	messageChan := make(chan string, 5) //small buffer.

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.ScheduleWhile(ctx, messageChan, util.GetScheduleFrequency())
	}()
	defer func() {
		cancel()
		<-done
	}()

	router, err := createRouter(logContext, routerOptions{
		scheduler:   scheduler,
		messageChan: messageChan,
		history:     session.History,
	})
	if err != nil {
		return err
	}

	util.LogInfo(logContext, fmt.Sprintf("Listening on port %s", portStr))
	launchServerFunc(portStr, router)
	return nil
}
