package processor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/formatting"
	"github.com/djzelenak/espa-worker/metadata"
	"github.com/djzelenak/espa-worker/model"
)

// science is implemented by each sensor family
type science interface {
	stageInputData(ctx context.Context) error
	buildScienceProducts(ctx context.Context) error
	cleanupWorkDir(ctx context.Context) error
	generateStatistics(ctx context.Context) error
	ProductName() (string, error)
}

// cdr drives the science pipeline shared by every sensor
type cdr struct {
	*customization
}

func newCDR(env Env, req *model.ProductRequest) (*cdr, error) {
	b, err := newBase(env, req)
	if err != nil {
		return nil, err
	}
	c, err := newCustomization(b)
	if err != nil {
		return nil, err
	}
	return &cdr{customization: c}, nil
}

func (c *cdr) processProduct(ctx context.Context, s science) (*model.Delivery, error) {
	steps := []func(context.Context) error{
		s.stageInputData,
		s.buildScienceProducts,
		func(context.Context) error { c.snapshotResources(); return nil },
		s.cleanupWorkDir,
		c.customizeProducts,
		s.generateStatistics,
		c.distributeStatistics,
		c.reformatProducts,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return nil, err
		}
	}

	delivery, err := c.distributeProduct(ctx, s.ProductName)
	if err != nil {
		return nil, err
	}
	c.snapshotResources()
	return delivery, nil
}

func (c *cdr) distributeStatistics(ctx context.Context) error {
	if !c.options.Bool("include_statistics") {
		return nil
	}
	err := c.distributor.DistributeStatistics(ctx, c.env.Config.ImmutableDistribution(), c.dirs.Work, c.req.OrderID)
	if err != nil {
		msg := "An exception occurred delivering the stats"
		c.logger.Error(msg, zap.Error(err))
		return errors.Wrap(err, msg)
	}
	c.logger.Info("*** Statistics Distribution Complete ***")
	return nil
}

func (c *cdr) reformatProducts(ctx context.Context) error {
	if !c.buildProducts {
		return nil
	}
	output := c.options.String("output_format")
	if output == "" {
		output = formatting.FormatENVI
	}
	return formatting.Reformat(ctx, c.env.Runner, c.logger, c.xmlName, c.dirs.Work, formatting.FormatENVI, output)
}

// removeProductsFromXML drops the matching bands, then validates what is left
func (c *cdr) removeProductsFromXML(ctx context.Context, remove func(metadata.Band) bool) error {
	xmlPath := filepath.Join(c.dirs.Work, c.xmlName)
	removed, err := metadata.RemoveBands(xmlPath, remove)
	if err != nil {
		return err
	}
	for _, band := range removed {
		c.logger.Debug("Removed band", zap.String("product", band.Product), zap.String("name", band.Name))
	}
	return metadata.Validate(ctx, c.env.Runner, c.env.Config.Schema(), xmlPath)
}

// productIn matches bands whose product is one of products
func productIn(products ...string) func(metadata.Band) bool {
	return func(band metadata.Band) bool {
		for _, product := range products {
			if band.Product == product {
				return true
			}
		}
		return false
	}
}

// globWork expands each pattern inside the work directory
func (c *cdr) globWork(patterns ...string) ([]string, error) {
	var matches []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(filepath.Join(c.dirs.Work, pattern))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		matches = append(matches, found...)
	}
	return matches, nil
}

// matchWork lists the work directory entries matching any expression
func (c *cdr) matchWork(expressions ...*regexp.Regexp) ([]string, error) {
	entries, err := os.ReadDir(c.dirs.Work)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var matches []string
	for _, entry := range entries {
		for _, expression := range expressions {
			if expression.MatchString(entry.Name()) {
				matches = append(matches, filepath.Join(c.dirs.Work, entry.Name()))
				break
			}
		}
	}
	return matches, nil
}

// removeNonProducts deletes intermediate files before packaging
func (c *cdr) removeNonProducts(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	names := make([]string, len(paths))
	for i, path := range paths {
		names[i] = filepath.Base(path)
	}
	c.logger.Info("REMOVING INTERMEDIATE DATA COMMAND: " + command.Line("rm", append([]string{"-rf"}, names...)...))

	var errs error
	for _, path := range paths {
		errs = multierr.Append(errs, errors.WithStack(os.RemoveAll(path)))
	}
	return errs
}

// statistics runs espa_statistics.py over the search table
func (c *cdr) statistics(ctx context.Context, label string, search map[string][]string) error {
	if !c.buildProducts || !c.options.Bool("include_statistics") {
		return nil
	}
	table, err := searchJSON(search)
	if err != nil {
		return err
	}
	return c.run(ctx, "SUMMARY "+strings.ToUpper(label)+" STATISTICS", "espa_statistics.py",
		"--work_directory", c.dirs.Work, "--files_to_search_for", table)
}
