package main

import (
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/djzelenak/espa-worker/history"
	"github.com/djzelenak/espa-worker/util"
)

func migrateDatabaseAction(*cli.Context) error {
	logContext := &util.BasicLogContext{}
	database, err := getDbConnectionFunc(logContext)
	if err != nil {
		return errors.Wrap(err, "Could not open database connection")
	}
	defer database.Close()

	if err := history.Migrate(database); err != nil {
		return err
	}
	util.LogInfo(logContext, "Job history schema is up to date")
	return nil
}
