package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/djzelenak/espa-worker/api"
	"github.com/djzelenak/espa-worker/model"
)

// Messages understood by ScheduleWhile
const (
	BeginJobMessage = "begin"
	AbortJobMessage = "abort"
)

// Scheduler defaults
const (
	DefaultPollLimit            = 10
	DefaultPollPriority         = "all"
	DefaultDispositionFrequency = 7 * time.Minute
)

const statusTimeLayout = "Mon Jan _2 15:04:05 2006"

// Answers from GetStatus when the job loop can not report
const (
	RunningStatus = "Currently running a job."
	StoppedStatus = "Job loop stopped."
)

var statusTimeout = time.Second

// ProductSource is the part of the production API the scheduler uses
type ProductSource interface {
	GetProductsToProcess(ctx context.Context, query api.ProductQuery) ([]model.ProductRequest, error)
	QueueProducts(ctx context.Context, products []api.OrderProduct, processingLocation, jobName string) (bool, error)
	HandleOrders(ctx context.Context) (bool, error)
}

// Scheduler asks the production API for work on a timer and hands it to a Worker
type Scheduler struct {
	Worker *Worker
	Source ProductSource

	ProductTypes         []string
	Limit                int
	Priority             string
	DispositionFrequency time.Duration

	statusChan chan chan string
	stopped    chan struct{}
	stopOnce   sync.Once
}

// NewScheduler polls source for every product type
func NewScheduler(w *Worker, source ProductSource, dispositionFrequency time.Duration) *Scheduler {
	if dispositionFrequency <= 0 {
		dispositionFrequency = DefaultDispositionFrequency
	}
	return &Scheduler{
		Worker:               w,
		Source:               source,
		ProductTypes:         model.ProductTypes,
		Limit:                DefaultPollLimit,
		Priority:             DefaultPollPriority,
		DispositionFrequency: dispositionFrequency,
		statusChan:           make(chan chan string, 10),
		stopped:              make(chan struct{}),
	}
}

func (s *Scheduler) logger() *zap.Logger {
	return s.Worker.logger()
}

// ScheduleWhile runs a job every maxTimeBetweenJobs, or when BeginJobMessage
// arrives, and hands order disposition to the API on its own timer.
// Note: this is blocking
// The function will exit when messageChan is closed or ctx is done, after any in-progress job completes.
// To stop a job early, send AbortJobMessage on messageChan.
func (s *Scheduler) ScheduleWhile(ctx context.Context, messageChan <-chan string, maxTimeBetweenJobs time.Duration) {
	s.logger().Info(fmt.Sprintf("Job loop started with frequency %v", maxTimeBetweenJobs))
	defer s.stopOnce.Do(func() { close(s.stopped) })

	previousStatus := "\tNone"

	scheduleTimer := time.NewTimer(maxTimeBetweenJobs)
	defer scheduleTimer.Stop()
	nextScheduledStartTime := nowFunc().Add(maxTimeBetweenJobs)

	disposition := time.NewTicker(s.DispositionFrequency)
	defer disposition.Stop()

	var startJob bool
	for {
		startJob = false

		select {
		case <-ctx.Done():
			return
		case <-scheduleTimer.C:
			s.logger().Info("Maximum time between jobs elapsed.")
			startJob = true
		case <-disposition.C:
			s.handleOrders(ctx)
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			if msg == BeginJobMessage {
				s.logger().Info("User requested job start.")
				startJob = true
			}
		case respChan := <-s.statusChan:
			select {
			case respChan <- fmt.Sprintf("%v\nStatus: Sleeping until %v\nPrevious job:\n%v",
				nowFunc().Format(statusTimeLayout),
				nextScheduledStartTime.Format(statusTimeLayout),
				previousStatus):
			default:
			}
		}

		if startJob {
			s.logger().Info("Starting job.")
			previousStatus = s.runWhileListening(ctx, messageChan)

			scheduleTimer.Stop()
		TimerDrainLoop:
			for {
				select {
				case <-scheduleTimer.C:
				default:
					break TimerDrainLoop
				}
			}
			scheduleTimer.Reset(maxTimeBetweenJobs)
			nextScheduledStartTime = nowFunc().Add(maxTimeBetweenJobs)
		}
	}
}

// runWhileListening runs a job, cancelling it if AbortJobMessage arrives
func (s *Scheduler) runWhileListening(ctx context.Context, messageChan <-chan string) string {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	listening := sync.WaitGroup{}
	listening.Add(1)
	go func() {
		defer listening.Done()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messageChan:
				if !ok {
					return
				}
				if msg == AbortJobMessage {
					s.logger().Warn("User requested job abort.")
					cancel()
					return
				}
			}
		}
	}()

	status := s.RunJob(jobCtx)
	close(done)
	listening.Wait()
	return status
}

// RunJob polls every product type, queues what came back and processes it.
// It returns a summary for GetStatus.
func (s *Scheduler) RunJob(ctx context.Context) string {
	started := nowFunc()
	jobName := "espa-worker-" + uuid.New().String()

	reqs, pollErrs := s.poll(ctx)
	lines := []string{
		"\tJob: " + jobName,
		"\tStarted: " + started.Format(statusTimeLayout),
		fmt.Sprintf("\tProducts: %d", len(reqs)),
	}
	for _, err := range pollErrs {
		lines = append(lines, "\tError: "+err)
	}

	if len(reqs) > 0 {
		if err := s.queue(ctx, reqs, jobName); err != nil {
			s.logger().Error("Could not queue products", zap.Error(err))
			lines = append(lines, "\tError: "+err.Error())
		} else if err := s.Worker.ProcessAll(ctx, reqs); err != nil {
			lines = append(lines, "\tError: "+err.Error())
		}
	}
	if ctx.Err() != nil {
		lines = append(lines, "\tAborted")
	}

	lines = append(lines, "\tFinished: "+nowFunc().Format(statusTimeLayout))
	return strings.Join(lines, "\n")
}

// poll fetches each product type concurrently. A failed product type does
// not stop the others.
func (s *Scheduler) poll(ctx context.Context) ([]model.ProductRequest, []string) {
	results := make([][]model.ProductRequest, len(s.ProductTypes))
	failures := make([]string, len(s.ProductTypes))

	user := ""
	if s.Worker.Config != nil {
		user = s.Worker.Config.User()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, productType := range s.ProductTypes {
		i, productType := i, productType
		g.Go(func() error {
			reqs, err := s.Source.GetProductsToProcess(gctx, api.ProductQuery{
				Limit:        s.Limit,
				User:         user,
				Priority:     s.Priority,
				ProductTypes: []string{productType},
			})
			if err != nil {
				s.logger().Error("Could not get products to process", zap.String("product_type", productType), zap.Error(err))
				s.Worker.Metrics.polled(productType, "error")
				failures[i] = productType + ": " + err.Error()
				return nil
			}
			s.Worker.Metrics.polled(productType, "ok")
			results[i] = reqs
			return nil
		})
	}
	_ = g.Wait()

	var all []model.ProductRequest
	for _, reqs := range results {
		all = append(all, reqs...)
	}
	var errs []string
	for _, failure := range failures {
		if failure != "" {
			errs = append(errs, failure)
		}
	}
	return all, errs
}

func (s *Scheduler) queue(ctx context.Context, reqs []model.ProductRequest, jobName string) error {
	products := make([]api.OrderProduct, len(reqs))
	for i, req := range reqs {
		products[i] = api.OrderProduct{OrderID: req.OrderID, ProductID: req.Scene}
	}
	location, err := hostnameFunc()
	if err != nil {
		return err
	}
	ok, err := s.Source.QueueProducts(ctx, products, location, jobName)
	if err != nil {
		return err
	}
	if !ok {
		return &api.APIError{Message: "Failed processing API call to queue_products"}
	}
	return nil
}

func (s *Scheduler) handleOrders(ctx context.Context) {
	s.logger().Info("Handling orders")
	ok, err := s.Source.HandleOrders(ctx)
	if err != nil {
		s.logger().Error("Order disposition failed", zap.Error(err))
		return
	}
	if !ok {
		s.logger().Warn("Order disposition was not accepted")
	}
}

// GetStatus is a thread safe way to get information about the scheduler.
// It gives up after statusTimeout, which is how long a running job may keep
// the loop from answering.
func (s *Scheduler) GetStatus() string {
	timeout := time.NewTimer(statusTimeout)
	defer timeout.Stop()

	responseChan := make(chan string, 1)
	select {
	case s.statusChan <- responseChan:
	case <-s.stopped:
		return StoppedStatus
	case <-timeout.C:
		return RunningStatus
	}

	select {
	case status := <-responseChan:
		return status
	case <-s.stopped:
		return StoppedStatus
	case <-timeout.C:
		return RunningStatus
	}
}
