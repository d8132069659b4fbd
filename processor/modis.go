package processor

import (
	"context"
	"path/filepath"

	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/model"
)

// MODIS satellites
const (
	SatelliteTerra = "TERRA"
	SatelliteAqua  = "AQUA"
)

// ModisStatistics is the search table handed to espa_statistics.py
var ModisStatistics = map[string][]string{
	"SR":    {"*sur_refl_b*.img"},
	"INDEX": {"*NDVI.img", "*EVI.img", "*_sr_ndvi.img"},
	"LST":   {"*LST_Day_1km.img", "*LST_Night_1km.img", "*LST_Day_6km.img", "*LST_Night_6km.img"},
	"EMIS":  {"*Emis_*.img"},
}

// Modis processes MODIS surface reflectance granules. The input is already
// a science product so building only converts it and adds NDVI.
type Modis struct {
	*cdr
	Satellite   string
	hdfFilename string
}

// NewModis validates the request for a Terra or Aqua granule
func NewModis(env Env, req *model.ProductRequest, satellite string) (*Modis, error) {
	c, err := newCDR(env, req)
	if err != nil {
		return nil, err
	}
	p := &Modis{cdr: c, Satellite: satellite}

	p.logger.Info("Validating [ModisProcessor] parameters")
	p.defaultFalse("include_customized_source_data", "include_source_data", "include_statistics")
	p.buildProducts = p.anyEnabled("include_customized_source_data", "include_modis_ndvi")
	if !p.buildProducts {
		p.logger.Info("***NO CUSTOMIZED PRODUCTS CHOSEN***")
	}
	return p, nil
}

// Process builds and delivers the product
func (p *Modis) Process(ctx context.Context) (*model.Delivery, error) {
	return p.process(ctx, func(ctx context.Context) (*model.Delivery, error) {
		return p.processProduct(ctx, p)
	})
}

// ProductName is <product prefix>-SC<timestamp>
func (p *Modis) ProductName() (string, error) {
	return p.nameFor(p.req.ProductID)
}

func (p *Modis) stageInputData(ctx context.Context) error {
	workFile, err := p.stager.StageFile(ctx, p.req.DownloadURL, p.dirs.Stage, p.dirs.Work,
		p.req.ProductID, config.ModisInputExtension)
	if err != nil {
		return err
	}
	p.hdfFilename = filepath.Base(workFile)
	return nil
}

func (p *Modis) buildScienceProducts(ctx context.Context) error {
	p.logger.Info("[ModisProcessor] Building Science Products")

	args := []string{"--hdf", p.hdfFilename}
	if !p.options.Bool("include_source_data") {
		args = append(args, "--del_src_files")
	}
	if err := p.run(ctx, "CONVERT MODIS TO ESPA", "convert_modis_to_espa", args...); err != nil {
		return err
	}

	if !p.options.Bool("include_modis_ndvi") {
		return nil
	}
	return p.run(ctx, "SPECTRAL INDICES", "spectral_indices.py", "--xml", p.xmlName, "--ndvi")
}

// cleanupWorkDir drops the source reflectance unless it was requested
func (p *Modis) cleanupWorkDir(ctx context.Context) error {
	if p.options.Bool("include_customized_source_data") {
		return nil
	}
	return p.removeProductsFromXML(ctx, productIn("sr_refl"))
}

func (p *Modis) generateStatistics(ctx context.Context) error {
	return p.statistics(ctx, "modis", ModisStatistics)
}
