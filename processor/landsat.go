package processor

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/metadata"
	"github.com/djzelenak/espa-worker/model"
)

// Landsat instruments
const (
	InstrumentTM      = "TM"
	InstrumentETM     = "ETM"
	InstrumentOLITIRS = "OLITIRS"
	InstrumentOLI     = "OLI"
)

var landsatIncludes = []string{
	"include_pixel_qa",
	"include_customized_source_data",
	"include_dswe",
	"include_st",
	"include_orca",
	"include_source_data",
	"include_sr",
	"include_sr_evi",
	"include_sr_msavi",
	"include_sr_nbr",
	"include_sr_nbr2",
	"include_sr_ndmi",
	"include_sr_ndvi",
	"include_sr_savi",
	"include_sr_thermal",
	"include_sr_toa",
	"include_statistics",
}

var landsatProducts = []string{
	"include_customized_source_data",
	"include_sr",
	"include_sr_toa",
	"include_sr_thermal",
	"include_pixel_qa",
	"include_sr_nbr",
	"include_sr_nbr2",
	"include_sr_ndvi",
	"include_sr_ndmi",
	"include_sr_savi",
	"include_sr_msavi",
	"include_sr_evi",
	"include_dswe",
	"include_st",
	"include_orca",
}

// SR is produced for these even when it is not delivered
var landsatSRInputs = []string{
	"include_sr",
	"include_sr_nbr",
	"include_sr_nbr2",
	"include_sr_ndvi",
	"include_sr_ndmi",
	"include_sr_savi",
	"include_sr_msavi",
	"include_sr_evi",
	"include_dswe",
}

// spectral index options and their spectral_indices.py flags, in order
var landsatIndices = [][2]string{
	{"include_sr_nbr", "--nbr"},
	{"include_sr_nbr2", "--nbr2"},
	{"include_sr_ndvi", "--ndvi"},
	{"include_sr_ndmi", "--ndmi"},
	{"include_sr_savi", "--savi"},
	{"include_sr_msavi", "--msavi"},
	{"include_sr_evi", "--evi"},
}

var (
	landsatIntermediateFiles = []string{"lndsr.*.txt", "lndcal.*.txt", "LogReport*", "*_elevation.*"}
	landsatL1SourceFiles     = []string{"L*.TIF", "README.GTF", "*gap_mask*", "L*_GCP.txt", "L*_VER.jpg", "L*_VER.txt"}
	landsatSourceProducts    = []string{"L1T", "L1G", "L1TP", "L1GT", "L1GS"}
)

// LandsatStatistics is the search table handed to espa_statistics.py
var LandsatStatistics = map[string][]string{
	"SR":         {"*_sr_band[0-9].img"},
	"TOA":        {"*_toa_band[0-9].img"},
	"BT":         {"*_bt_band6.img", "*_bt_band1[0-1].img"},
	"INDEX":      {"*_nbr.img", "*_nbr2.img", "*_ndmi.img", "*_ndvi.img", "*_evi.img", "*_savi.img", "*_msavi.img"},
	"LANDSAT_ST": {"*_st.img"},
	"RRS":        {"*_rrs_band[0-7].img"},
	"CHLOR_A":    {"*_chlor_a.img"},
}

// Landsat processes TM, ETM+, OLI/TIRS and OLI-only collection products
type Landsat struct {
	*cdr
	Instrument      string
	requiresSRInput bool
}

// NewLandsat validates the request for instrument
func NewLandsat(env Env, req *model.ProductRequest, instrument string) (*Landsat, error) {
	c, err := newCDR(env, req)
	if err != nil {
		return nil, err
	}
	p := &Landsat{cdr: c, Instrument: instrument}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Landsat) validate() error {
	p.logger.Info("Validating [LandsatProcessor] parameters")
	p.defaultFalse(landsatIncludes...)

	p.buildProducts = p.anyEnabled(landsatProducts...)
	if !p.buildProducts {
		p.logger.Info("***NO SCIENCE PRODUCTS CHOSEN***")
	}
	p.requiresSRInput = p.anyEnabled(landsatSRInputs...)

	if p.Instrument != InstrumentOLI {
		return nil
	}
	p.logger.Info("Validating [LandsatOLIProcessor] parameters")
	for _, option := range []string{"include_sr", "include_sr_thermal", "include_dswe"} {
		if p.options[option] == true {
			return errors.Errorf("%s is an unavailable product option for OLI-Only data", option)
		}
	}
	return nil
}

// Process builds and delivers the product
func (p *Landsat) Process(ctx context.Context) (*model.Delivery, error) {
	return p.process(ctx, func(ctx context.Context) (*model.Delivery, error) {
		return p.processProduct(ctx, p)
	})
}

// ProductName is <product prefix>-SC<timestamp>
func (p *Landsat) ProductName() (string, error) {
	return p.nameFor(p.req.ProductID)
}

func (p *Landsat) stageInputData(ctx context.Context) error {
	return p.stager.StageArchive(ctx, p.req.DownloadURL, p.dirs.Stage, p.dirs.Work,
		p.req.ProductID, config.LandsatInputExtension)
}

func (p *Landsat) buildScienceProducts(ctx context.Context) error {
	if !p.buildProducts {
		return nil
	}
	p.logger.Info("[LandsatProcessor] Building Science Products")

	mtl, err := metadata.LandsatMTLFilename(p.dirs.Work, p.req.ProductID, p.logger)
	if err != nil {
		return err
	}
	convert := []string{"--mtl", mtl}
	if !p.options.Bool("include_source_data") {
		convert = append(convert, "--del_src_files")
	}

	type step struct {
		label string
		name  string
		args  []string
		when  bool
	}
	xml := []string{"--xml", p.xmlName}
	steps := []step{
		{"CONVERT LPGS TO ESPA", "convert_lpgs_to_espa", convert, true},
		{"CLIP BAND MISALIGNMENT ESPA", "clip_band_misalignment", xml, true},
		{"ELEVATION", "build_elevation_band.py", xml, p.anyEnabled("include_dswe", "include_st")},
		{"CLASS BASED QA", "generate_pixel_qa", xml, true},
		{"SURFACE REFLECTANCE", "surface_reflectance.py", p.srArgs(), true},
		{"CLOUD DILATION", "dilate_pixel_qa", append(xml, "--bit", "5", "--distance", "3"), true},
		{"CFMASK WATER DETECTION", "cfmask_water_detection", xml, true},
		{"SPECTRAL INDICES", "spectral_indices.py", p.indexArgs(), p.indexArgs() != nil},
		{"SURFACE WATER EXTENT", "surface_water_extent.py", append(xml, "--verbose"), p.options.Bool("include_dswe")},
		{"ST", "surface_temperature.py", p.stArgs(), p.options.Bool("include_st")},
		{"WATER LEAVING REFLECTANCE", "water_leaving_reflectance.py", xml, p.options.Bool("include_orca")},
	}
	for _, s := range steps {
		if !s.when {
			continue
		}
		if err := p.run(ctx, s.label, s.name, s.args...); err != nil {
			return err
		}
	}
	return nil
}

func (p *Landsat) srArgs() []string {
	args := []string{"--xml", p.xmlName}
	if p.Instrument == InstrumentOLITIRS || p.Instrument == InstrumentOLI {
		args = append(args, "--write_toa")
	}
	if !p.requiresSRInput {
		args = append(args, "--process_sr", "False")
	}
	return args
}

// indexArgs is nil when no index was requested. OLI-only data has no SR to
// build indices from.
func (p *Landsat) indexArgs() []string {
	if p.Instrument == InstrumentOLI {
		return nil
	}
	var flags []string
	for _, index := range landsatIndices {
		if p.options.Bool(index[0]) {
			flags = append(flags, index[1])
		}
	}
	if len(flags) == 0 {
		return nil
	}
	return append([]string{"--xml", p.xmlName}, flags...)
}

func (p *Landsat) stArgs() []string {
	algorithm := p.options.String("st_algorithm")
	args := []string{"--xml", p.xmlName, "--keep-intermediate-data", "--st_algorithm", algorithm}
	if algorithm == "single_channel" {
		args = append(args, "--reanalysis", p.options.String("reanalysis_source"))
	}
	return args
}

func (p *Landsat) cleanupWorkDir(ctx context.Context) error {
	var patterns []string
	if !p.options.Bool("keep_intermediate_data") {
		patterns = append(patterns, landsatIntermediateFiles...)
	}
	if !p.options.Bool("include_source_data") {
		patterns = append(patterns, landsatL1SourceFiles...)
	}
	nonProducts, err := p.globWork(patterns...)
	if err != nil {
		return err
	}
	if err := p.removeNonProducts(nonProducts); err != nil {
		return err
	}

	if !p.buildProducts {
		return nil
	}
	return p.removeProductsFromXML(ctx, p.unrequestedBand())
}

// unrequestedBand matches the bands of products nobody asked for. Elevation
// is always removed. radsat_qa stays with any of sr, toa or bt.
func (p *Landsat) unrequestedBand() func(metadata.Band) bool {
	var products []string
	if !p.options.Bool("include_customized_source_data") {
		products = append(products, landsatSourceProducts...)
	}
	if !p.options.Bool("include_sr") {
		products = append(products, "sr_refl")
	}
	if !p.options.Bool("include_sr_toa") {
		products = append(products, "toa_refl", "angle_bands")
	}
	if !p.options.Bool("include_sr_thermal") {
		products = append(products, "toa_bt")
	}
	if !p.options.Bool("keep_intermediate_data") {
		products = append(products, "intermediate_data")
	}
	products = append(products, "elevation")

	match := productIn(products...)
	keepRadsat := p.anyEnabled("include_sr", "include_sr_toa", "include_sr_thermal")
	return func(band metadata.Band) bool {
		if !match(band) {
			return false
		}
		return !(band.Name == "radsat_qa" && keepRadsat)
	}
}

func (p *Landsat) generateStatistics(ctx context.Context) error {
	return p.statistics(ctx, "landsat", LandsatStatistics)
}

func (p *Landsat) String() string {
	return fmt.Sprintf("Landsat%sProcessor", p.Instrument)
}
