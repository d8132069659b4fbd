// Package processor turns a product request into a delivered product by
// running the science applications in the right order.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/distribution"
	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/parameters"
	"github.com/djzelenak/espa-worker/sensor"
	"github.com/djzelenak/espa-worker/staging"
	"github.com/djzelenak/espa-worker/transfer"
	"github.com/djzelenak/espa-worker/workspace"
)

// Processor generates, packages and delivers one product
type Processor interface {
	// Process must be followed by RemoveProductDirectory
	Process(ctx context.Context) (*model.Delivery, error)
	RemoveProductDirectory()
	ProductName() (string, error)
}

// Env is what every processor needs from the worker
type Env struct {
	Config *config.Config
	Runner command.Runner
	Logger *zap.Logger
	// Now defaults to time.Now
	Now func() time.Time
	// RetryInterval is handed to the distributor
	RetryInterval time.Duration
}

// base holds what all processors share: the request, its directories and
// delivery of the finished product.
type base struct {
	env     Env
	req     *model.ProductRequest
	options parameters.Options
	logger  *zap.Logger

	dirs        workspace.Directories
	productName string

	transfer    *transfer.Client
	stager      *staging.Stager
	distributor *distribution.Distributor
}

func newBase(env Env, req *model.ProductRequest) (*base, error) {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Runner == nil {
		env.Runner = command.ExecRunner{Logger: env.Logger}
	}

	b := &base{env: env, req: req, logger: env.Logger}
	b.logger.Debug(fmt.Sprintf("PARMS: %s", req))
	b.logger.Info(fmt.Sprintf("Using distribution method [%s]", env.Config.DistributionMethod()))

	b.transfer = transfer.New(env.Config, env.Runner, env.Logger)
	b.stager = &staging.Stager{Config: env.Config, Transfer: b.transfer, Logger: env.Logger}
	b.distributor = &distribution.Distributor{
		Config:        env.Config,
		Transfer:      b.transfer,
		Runner:        env.Runner,
		Logger:        env.Logger,
		RetryInterval: env.RetryInterval,
	}

	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *base) validate() error {
	if err := b.req.Validate(); err != nil {
		return err
	}
	if b.req.ProductID == b.req.Scene {
		b.logger.Debug("[product_id] parameter defaulted to [scene]")
	}
	b.options = b.req.Options

	// Only developers turn these on
	b.options.SetDefault("keep_directory", false)
	b.options.SetDefault("keep_intermediate_data", false)

	b.options.SetDefault("destination_username", "localhost")
	b.options.SetDefault("destination_pw", "localhost")
	return nil
}

// defaultFalse forces each missing include option to false
func (b *base) defaultFalse(keys ...string) {
	for _, key := range keys {
		if b.options.SetDefault(key, false) {
			b.logger.Warn(fmt.Sprintf("[%s] parameter missing defaulting to False", key))
		}
	}
}

// anyEnabled reports whether at least one of the options is on
func (b *base) anyEnabled(keys ...string) bool {
	for _, key := range keys {
		if b.options.Bool(key) {
			return true
		}
	}
	return false
}

func (b *base) logOrderParameters() {
	b.logger.Info("MAPPER OPTION LINE " + b.req.String())
}

func (b *base) initializeProcessingDirectory() error {
	dirs, err := workspace.Initialize(b.env.Config, b.req.OrderID, b.req.ProductID, b.logger)
	b.dirs = dirs
	return err
}

// RemoveProductDirectory frees the disk space used by the request unless
// the request asked to keep it.
func (b *base) RemoveProductDirectory() {
	if b.dirs.Product != "" && !b.options.Bool("keep_directory") {
		b.dirs.Remove()
	}
}

// nameFor builds <prefix>-SC<timestamp> once and reuses it afterwards
func (b *base) nameFor(productID string) (string, error) {
	if b.productName != "" {
		return b.productName, nil
	}
	info, err := sensor.Lookup(productID)
	if err != nil {
		return "", err
	}
	b.productName = model.ProductName(info.ProductPrefix, b.env.Now())
	return b.productName, nil
}

// run executes a science application from the work directory. label
// prefixes the logged command line.
func (b *base) run(ctx context.Context, label, name string, args ...string) error {
	b.logger.Info(label + " COMMAND: " + command.Line(name, args...))
	output, err := b.env.Runner.Run(ctx, b.dirs.Work, name, args...)
	if len(output) > 0 {
		b.logger.Info(output)
	}
	return err
}

func (b *base) distributeProduct(ctx context.Context, productName func() (string, error)) (*model.Delivery, error) {
	name, err := productName()
	if err != nil {
		return nil, err
	}

	delivery, err := b.distributor.DistributeProduct(ctx, b.env.Config.ImmutableDistribution(),
		name, b.dirs.Work, b.dirs.Output, b.req.OrderID)
	if err != nil {
		msg := "An Exception occurred delivering the product"
		b.logger.Error(msg, zap.Error(err))
		return nil, errors.Wrap(err, msg)
	}

	b.logger.Info("*** Product Delivery Complete ***")
	return &delivery, nil
}

// process wraps processProduct with the directory lifecycle
func (b *base) process(ctx context.Context, processProduct func(context.Context) (*model.Delivery, error)) (*model.Delivery, error) {
	b.logOrderParameters()

	if err := b.initializeProcessingDirectory(); err != nil {
		return nil, err
	}
	defer b.RemoveProductDirectory()

	return processProduct(ctx)
}

// searchJSON renders a search table for the science applications
func searchJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(data), nil
}
