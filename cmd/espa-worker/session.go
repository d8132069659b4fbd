package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/history"
	"github.com/djzelenak/espa-worker/logging"
	"github.com/djzelenak/espa-worker/util"
	"github.com/djzelenak/espa-worker/worker"
)

var (
	metricsRegistry = prometheus.NewRegistry()
	workerMetrics   = worker.NewMetrics(metricsRegistry)
)

// workerSession is everything a processing command opens and has to close
type workerSession struct {
	Worker  *worker.Worker
	History *history.Store

	log *logging.WorkerLog
	db  *history.DB
}

var openWorkerFunc = openWorker

// openWorker loads the configuration, starts the worker log in the current
// directory and attaches job history when a database is configured.
func openWorker(configPath string) (*workerSession, error) {
	logContext := &util.BasicLogContext{}

	if configPath == "" {
		configPath = util.GetConfigFile()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	dir, err := os.Getwd()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	workerLog, err := logging.NewWorkerLogger(dir, os.Stdout, os.Stderr)
	if err != nil {
		return nil, err
	}
	util.SetLogger(workerLog.Logger)

	session := &workerSession{
		Worker: &worker.Worker{
			Config:             cfg,
			Logger:             workerLog.Logger,
			WorkerLogPath:      workerLog.Path,
			JobLogDir:          dir,
			Runner:             command.ExecRunner{Logger: workerLog.Logger},
			Metrics:            workerMetrics,
			DeveloperSleepMode: util.IsDeveloperSleepMode(),
		},
		log: workerLog,
	}

	db, err := getDbConnectionFunc(logContext)
	switch {
	case errors.Is(err, history.ErrNoDatabase):
		util.LogInfo(logContext, "Job history disabled")
		return session, nil
	case err != nil:
		return nil, multierr.Append(err, session.Close())
	}
	session.db = db
	if err := history.Migrate(db); err != nil {
		return nil, multierr.Append(err, session.Close())
	}
	session.History = history.NewStore(db)
	session.Worker.History = session.History
	return session, nil
}

// Close releases the database and flushes the worker log
func (s *workerSession) Close() error {
	var err error
	if s.db != nil {
		err = multierr.Append(err, s.db.Close())
	}
	if s.log != nil {
		util.SetLogger(nil)
		err = multierr.Append(err, s.log.Close())
	}
	return err
}
