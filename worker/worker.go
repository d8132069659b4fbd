// Package worker runs product requests from the production API through the
// processors and reports the outcome back to the API.
package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/djzelenak/espa-worker/api"
	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/history"
	"github.com/djzelenak/espa-worker/logging"
	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/parameters"
	"github.com/djzelenak/espa-worker/processor"
	"github.com/djzelenak/espa-worker/sensor"
)

var (
	hostnameFunc   = os.Hostname
	connectAPIFunc = api.Connect
	sleepFunc      = sleepContext
	nowFunc        = time.Now
)

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Worker processes product requests
type Worker struct {
	Config *config.Config
	// Logger is the worker log. Job logs tee into it.
	Logger        *zap.Logger
	WorkerLogPath string
	// JobLogDir holds the per product logs, the current directory when empty
	JobLogDir string

	Runner  command.Runner
	History *history.Store
	Metrics *Metrics

	// DeveloperSleepMode skips the minimum request duration
	DeveloperSleepMode bool
	// RetryInterval is the first wait between API error reports,
	// config.DefaultSleep when zero
	RetryInterval time.Duration
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func (w *Worker) retryInterval() time.Duration {
	if w.RetryInterval == 0 {
		return config.DefaultSleep
	}
	return w.RetryInterval
}

// SleepDuration is how long to wait so a request takes at least the
// configured minimum. It is never less than a second.
func SleepDuration(cfg *config.Config, start time.Time, dontSleep bool) time.Duration {
	elapsed := time.Duration(nowFunc().Sub(start).Seconds()) * time.Second
	minimum := cfg.MinRequestDuration()
	if dontSleep || elapsed >= minimum {
		return time.Second
	}
	return minimum - elapsed
}

// job is the state of one Work call
type job struct {
	*Worker
	req       model.ProductRequest
	location  string
	start     time.Time
	dontSleep bool
	log       *logging.JobLog
	server    *api.Server
}

// Work processes one request. Processing failures are reported to the API
// and recorded, not returned; the error is only for requests that could not
// be started.
func (w *Worker) Work(ctx context.Context, req model.ProductRequest) error {
	location, err := hostnameFunc()
	if err != nil {
		return errors.Wrap(err, "Could not determine the processing location")
	}
	w.logger().Debug("processing location given as: " + location)

	if req.Options == nil {
		return errors.New("Error missing JSON [options] record")
	}
	w.logger().Info("PARAMETERS: " + req.String())
	w.logger().Debug(fmt.Sprintf("CONFIG: %v", w.Config.Redacted()))

	j := &job{Worker: w, req: req, location: location, start: nowFunc(), dontSleep: true}

	if j.req.Scene != model.PlotProductID {
		// Only developers skip the minimum request duration
		j.dontSleep = w.DeveloperSleepMode
	}
	j.req.OrderID = strings.Replace(j.req.OrderID, "'", "", -1)
	if j.req.ProductID == "" {
		j.req.ProductID = j.req.Scene
	}

	jobDir := w.JobLogDir
	if jobDir == "" {
		jobDir = "."
	}
	j.log, err = logging.OpenJobLog(jobDir, j.req.OrderID, j.req.ProductID, j.req.Options.Bool("debug"), w.Logger)
	if err != nil {
		return err
	}
	defer j.log.Close()
	j.log.Logger.Info(fmt.Sprintf("Processing %s:%s", j.req.OrderID, j.req.ProductID))

	historyID := j.recordStart(ctx)
	w.Metrics.started()

	delivery, err := j.run(ctx)

	outcome := OutcomeComplete
	switch {
	case err == nil:
		j.recordComplete(ctx, historyID, *delivery)
	case api.IsAPIError(err):
		// Expected when products were cancelled after being queued
		outcome = OutcomeHalted
		w.logger().Warn("Halt. API raised error: " + err.Error())
		j.recordFailure(ctx, historyID, err)
	default:
		outcome = OutcomeError
		w.logger().Error("Exception encountered stacktrace follows", zap.Error(err))
		j.sleep(ctx)
		j.archiveLogs()
		if j.server != nil {
			if reportErr := j.setProductError(ctx); reportErr != nil {
				w.logger().Error("Exception encountered stacktrace follows", zap.Error(reportErr))
			}
		}
		j.recordFailure(ctx, historyID, err)
	}
	w.Metrics.finished(j.req.ProductType, outcome, nowFunc().Sub(j.start))
	return nil
}

// run is the happy path. Any error it returns has already stopped processing.
func (j *job) run(ctx context.Context) (*model.Delivery, error) {
	if err := j.connect(ctx); err != nil {
		return nil, err
	}

	if j.req.Scene != model.PlotProductID {
		if err := j.checkProduct(); err != nil {
			return nil, err
		}
	}

	delivery, err := j.process(ctx)
	if err != nil {
		return nil, err
	}

	j.sleep(ctx)
	j.archiveLogs()

	if j.server != nil {
		ok, err := j.server.MarkProductComplete(ctx, j.req.ProductID, j.req.OrderID, j.location, *delivery, "")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &api.APIError{Message: "Failed processing API call to mark_scene_complete"}
		}
	}
	return delivery, nil
}

func (j *job) connect(ctx context.Context) error {
	apiURL := j.Config.APIURL()
	if apiURL == "" {
		msg := "ESPA_API is not defined!"
		j.logger().Error(msg)
		return &api.APIError{Message: msg}
	}
	if apiURL == config.SkipAPI {
		return nil
	}

	server, err := connectAPIFunc(ctx, apiURL)
	j.logger().Info("Attemped connection to " + apiURL)
	if err != nil {
		j.logger().Error(fmt.Sprintf("Failed connecting to API %s", apiURL), zap.Error(err))
		if api.IsAPIError(err) {
			return err
		}
		return &api.APIError{URL: apiURL, Message: err.Error()}
	}
	j.server = server

	ok, err := server.UpdateStatus(ctx, j.req.ProductID, j.req.OrderID, j.location, model.StatusProcessing)
	if err != nil {
		return err
	}
	if !ok {
		return &api.APIError{Message: "Failed processing API call to update_status to processing"}
	}
	return nil
}

// checkProduct makes sure the sensor is supported and the output format is valid
func (j *job) checkProduct() error {
	if _, err := sensor.Lookup(j.req.ProductID); err != nil {
		return err
	}
	if !j.req.Options.Has("output_format") {
		j.log.Logger.Warn("[output_format] parameter missing defaulting to envi")
		j.req.Options["output_format"] = "envi"
	}
	format := j.req.Options.String("output_format")
	for _, valid := range parameters.ValidOutputFormats {
		if format == valid {
			return nil
		}
	}
	return errors.Errorf("Invalid Output format %s", format)
}

func (j *job) process(ctx context.Context) (*model.Delivery, error) {
	env := processor.Env{
		Config:        j.Config,
		Runner:        j.Runner,
		Logger:        j.log.Logger,
		RetryInterval: j.RetryInterval,
	}
	p, err := processor.GetInstance(env, &j.req)
	if err != nil {
		return nil, err
	}
	// Free disk space to be nice to the whole system
	defer p.RemoveProductDirectory()

	return p.Process(ctx)
}

func (j *job) sleep(ctx context.Context) {
	elapsed := time.Duration(nowFunc().Sub(j.start).Seconds()) * time.Second
	j.log.Logger.Info(fmt.Sprintf("Processing Time Elapsed %d Seconds", int(elapsed.Seconds())))
	d := SleepDuration(j.Config, j.start, j.dontSleep)
	j.log.Logger.Info(fmt.Sprintf("Sleeping An Additional %d Seconds", int(d.Seconds())))
	sleepFunc(ctx, d)
}

func (j *job) archiveLogs() {
	_ = j.log.Logger.Sync()
	err := logging.ArchiveLogFiles(j.Config.DistributionDir(), j.req.OrderID, j.req.ProductID, j.log.Path, j.WorkerLogPath)
	if err != nil {
		// We don't care about log archive failures
		j.logger().Warn("Failed to archive log files", zap.Error(err))
	}
}

// setProductError reports the job log to the API, retrying with a growing
// wait so failed products do not stay in processing.
func (j *job) setProductError(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = j.retryInterval()
	policy.Multiplier = 1.5
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, config.MaxSetSceneErrorAttempts), ctx)

	logger := j.log.Logger
	return backoff.Retry(func() error {
		logger.Info(fmt.Sprintf("Product ID is [%s]", j.req.ProductID))
		logger.Info(fmt.Sprintf("Order ID is [%s]", j.req.OrderID))
		logger.Info(fmt.Sprintf("Processing Location is [%s]", j.location))

		contents, err := j.log.Contents()
		if err != nil {
			return err
		}
		ok, err := j.server.SetProductError(ctx, j.req.ProductID, j.req.OrderID, j.location, contents)
		if err != nil {
			logger.Error("Failed processing API call to set_scene_error", zap.Error(err))
			return err
		}
		if !ok {
			logger.Error("Failed processing API call to set_scene_error")
			return backoff.Permanent(errors.New("set_scene_error was refused"))
		}
		return nil
	}, retry)
}

func (j *job) recordStart(ctx context.Context) string {
	if j.History == nil {
		return ""
	}
	id, err := j.History.Start(ctx, j.req, j.location)
	if err != nil {
		j.logger().Warn("Could not record job start", zap.Error(err))
	}
	return id
}

func (j *job) recordComplete(ctx context.Context, id string, delivery model.Delivery) {
	if j.History == nil || id == "" {
		return
	}
	if err := j.History.Complete(ctx, id, delivery); err != nil {
		j.logger().Warn("Could not record job completion", zap.Error(err))
	}
}

func (j *job) recordFailure(ctx context.Context, id string, cause error) {
	if j.History == nil || id == "" {
		return
	}
	if err := j.History.Fail(ctx, id, cause.Error()); err != nil {
		j.logger().Warn("Could not record job failure", zap.Error(err))
	}
}

// ProcessAll exports the configuration for the science applications and
// works through reqs, espa_worker_concurrency at a time.
func (w *Worker) ProcessAll(ctx context.Context, reqs []model.ProductRequest) error {
	if err := w.Config.ExportEnvironment(); err != nil {
		return err
	}
	w.logger().Debug(fmt.Sprintf("OS ENV: %v", os.Environ()))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.Config.WorkerConcurrency())
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			if err := w.Work(ctx, req); err != nil {
				w.logger().Error("Processing failed stacktrace follows", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
