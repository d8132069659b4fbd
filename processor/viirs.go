package processor

import (
	"context"
	"path/filepath"

	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/model"
)

// VIIRSStatistics is the search table handed to espa_statistics.py
var VIIRSStatistics = map[string][]string{
	"SR":    {"*SurfReflect_I*.img"},
	"INDEX": {"*_sr_ndvi.img"},
}

// VIIRS processes VNP09GA granules
type VIIRS struct {
	*cdr
	h5Filename string
}

// NewVIIRS validates the request
func NewVIIRS(env Env, req *model.ProductRequest) (*VIIRS, error) {
	c, err := newCDR(env, req)
	if err != nil {
		return nil, err
	}
	p := &VIIRS{cdr: c}

	p.logger.Info("Validating [VIIRSProcessor] parameters")
	p.defaultFalse("include_customized_source_data", "include_source_data", "include_statistics")
	p.buildProducts = p.anyEnabled("include_customized_source_data", "include_viirs_ndvi")
	if !p.buildProducts {
		p.logger.Info("***NO CUSTOMIZED PRODUCTS CHOSEN***")
	}
	return p, nil
}

// Process builds and delivers the product
func (p *VIIRS) Process(ctx context.Context) (*model.Delivery, error) {
	return p.process(ctx, func(ctx context.Context) (*model.Delivery, error) {
		return p.processProduct(ctx, p)
	})
}

// ProductName is <product prefix>-SC<timestamp>
func (p *VIIRS) ProductName() (string, error) {
	return p.nameFor(p.req.ProductID)
}

func (p *VIIRS) stageInputData(ctx context.Context) error {
	workFile, err := p.stager.StageFile(ctx, p.req.DownloadURL, p.dirs.Stage, p.dirs.Work,
		p.req.ProductID, config.ViirsInputExtension)
	if err != nil {
		return err
	}
	p.h5Filename = filepath.Base(workFile)
	return nil
}

func (p *VIIRS) buildScienceProducts(ctx context.Context) error {
	p.logger.Info("[ViirsProcessor] Building Science Products")

	args := []string{"--hdf", p.h5Filename}
	if !p.options.Bool("include_source_data") {
		args = append(args, "--del_src_files")
	}
	if err := p.run(ctx, "CONVERT VIIRS TO ESPA", "convert_viirs_to_espa", args...); err != nil {
		return err
	}

	if !p.options.Bool("include_viirs_ndvi") {
		return nil
	}
	return p.run(ctx, "SPECTRAL INDICES", "spectral_indices.py", "--xml", p.xmlName, "--ndvi")
}

func (p *VIIRS) cleanupWorkDir(ctx context.Context) error {
	if p.options.Bool("include_customized_source_data") {
		return nil
	}
	return p.removeProductsFromXML(ctx, productIn("sr_refl"))
}

func (p *VIIRS) generateStatistics(ctx context.Context) error {
	return p.statistics(ctx, "viirs", VIIRSStatistics)
}
