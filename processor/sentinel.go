package processor

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/staging"
)

var sentinelIncludes = []string{
	"include_s2_sr",
	"include_s2_evi",
	"include_s2_msavi",
	"include_s2_nbr",
	"include_s2_nbr2",
	"include_s2_ndmi",
	"include_s2_ndvi",
	"include_s2_savi",
	"include_statistics",
}

var sentinelProducts = []string{
	"include_s2_sr",
	"include_s2_nbr",
	"include_s2_nbr2",
	"include_s2_ndvi",
	"include_s2_ndmi",
	"include_s2_savi",
	"include_s2_msavi",
	"include_s2_evi",
}

var sentinelIndices = [][2]string{
	{"include_s2_nbr", "--nbr"},
	{"include_s2_nbr2", "--nbr2"},
	{"include_s2_ndvi", "--ndvi"},
	{"include_s2_ndmi", "--ndmi"},
	{"include_s2_savi", "--savi"},
	{"include_s2_msavi", "--msavi"},
	{"include_s2_evi", "--evi"},
}

var sentinelL1Sources = []*regexp.Regexp{
	regexp.MustCompile(`MTD_MSIL1C\.xml`),
	regexp.MustCompile(`MTD_TL\.xml`),
	regexp.MustCompile(`_B[0-9,A-Z]`),
}

// SentinelStatistics is the search table handed to espa_statistics.py
var SentinelStatistics = map[string][]string{
	"SR":    {"*_sr_band*.img", "*_sr_aerosol.img"},
	"INDEX": {"*_nbr.img", "*_nbr2.img", "*_ndmi.img", "*_ndvi.img", "*_evi.img", "*_savi.img", "*_msavi.img"},
}

// ErrNoESPAProductID is returned when the converted Sentinel-2 metadata
// cannot be found
var ErrNoESPAProductID = errors.New("Unable to determine ESPA-formatted product id")

// Sentinel processes Sentinel-2 MSI L1C products
type Sentinel struct {
	*cdr
	requiresSRInput bool
}

// NewSentinel validates the request
func NewSentinel(env Env, req *model.ProductRequest) (*Sentinel, error) {
	c, err := newCDR(env, req)
	if err != nil {
		return nil, err
	}
	p := &Sentinel{cdr: c}

	p.logger.Info("Validating [SentinelProcessor] parameters")
	p.defaultFalse(sentinelIncludes...)
	p.buildProducts = p.anyEnabled(sentinelProducts...)
	if !p.buildProducts {
		p.logger.Info("***NO SCIENCE PRODUCTS CHOSEN***")
	}
	p.requiresSRInput = p.buildProducts
	return p, nil
}

// Process builds and delivers the product
func (p *Sentinel) Process(ctx context.Context) (*model.Delivery, error) {
	return p.process(ctx, func(ctx context.Context) (*model.Delivery, error) {
		return p.processProduct(ctx, p)
	})
}

// espaProductID is the name of the S2*.xml written by the converter, which
// differs from the product ID for products ordered by their original name.
func (p *Sentinel) espaProductID() (string, error) {
	entries, err := os.ReadDir(p.dirs.Work)
	if err != nil {
		return "", errors.WithStack(err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "S2") && strings.HasSuffix(name, ".xml") {
			return strings.TrimSuffix(name, ".xml"), nil
		}
	}
	return "", ErrNoESPAProductID
}

// ProductName uses the ESPA formatted ID found in the work directory
func (p *Sentinel) ProductName() (string, error) {
	if p.productName != "" {
		return p.productName, nil
	}
	id, err := p.espaProductID()
	if err != nil {
		p.logger.Error(err.Error())
		return "", err
	}
	return p.nameFor(id)
}

func (p *Sentinel) stageInputData(ctx context.Context) error {
	workFile, err := p.stager.StageFile(ctx, p.req.DownloadURL, p.dirs.Stage, p.dirs.Work,
		p.req.ProductID, config.Sentinel2InputExtension)
	if err != nil {
		return err
	}

	err = p.run(ctx, "UNPACKAGE SENTINEL", "unpackage_s2.py", "-i", workFile, "-o", p.dirs.Work)
	if rmErr := staging.RemoveFile(workFile); rmErr == nil {
		p.logger.Info("Cleaned original Sentinel-2 .zip package " + workFile)
	}
	if err != nil {
		return err
	}
	return staging.FlattenSAFE(p.dirs.Work, p.logger)
}

func (p *Sentinel) buildScienceProducts(ctx context.Context) error {
	if !p.buildProducts {
		return nil
	}
	p.logger.Info("[SentinelProcessor] Building Science Products")

	var convert []string
	if !p.options.Bool("include_source_data") {
		convert = append(convert, "--del_src_files")
	}
	if err := p.run(ctx, "CONVERT SENTINEL TO ESPA", "convert_sentinel_to_espa", convert...); err != nil {
		return err
	}
	if id, err := p.espaProductID(); err == nil {
		p.xmlName = id + ".xml"
	}

	sr := []string{"--xml", p.xmlName}
	if !p.requiresSRInput {
		sr = append(sr, "--process_sr", "False")
	}
	if err := p.run(ctx, "SENTINEL-2 SURFACE REFLECTANCE", "surface_reflectance.py", sr...); err != nil {
		return err
	}

	var flags []string
	for _, index := range sentinelIndices {
		if p.options.Bool(index[0]) {
			flags = append(flags, index[1])
		}
	}
	if len(flags) == 0 {
		return nil
	}
	return p.run(ctx, "SENTINEL-2 SPECTRAL INDICES", "spectral_indices.py", append([]string{"--xml", p.xmlName}, flags...)...)
}

func (p *Sentinel) cleanupWorkDir(ctx context.Context) error {
	var nonProducts []string
	if !p.options.Bool("keep_intermediate_data") {
		found, err := p.globWork(landsatIntermediateFiles...)
		if err != nil {
			return err
		}
		nonProducts = append(nonProducts, found...)
	}
	if !p.options.Bool("include_source_data") {
		found, err := p.matchWork(sentinelL1Sources...)
		if err != nil {
			return err
		}
		nonProducts = append(nonProducts, found...)
	}
	if err := p.removeNonProducts(nonProducts); err != nil {
		return err
	}

	if !p.buildProducts {
		return nil
	}
	var products []string
	if !p.options.Bool("include_customized_source_data") {
		products = append(products, "MSIL1C")
	}
	if !p.options.Bool("include_s2_sr") {
		products = append(products, "sr_refl")
	}
	if !p.options.Bool("keep_intermediate_data") {
		products = append(products, "intermediate_data")
	}
	return p.removeProductsFromXML(ctx, productIn(products...))
}

func (p *Sentinel) generateStatistics(ctx context.Context) error {
	return p.statistics(ctx, "sentinel-2", SentinelStatistics)
}
