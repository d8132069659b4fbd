package processor

import (
	"context"
	"encoding/json"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/djzelenak/espa-worker/model"
)

// Sensor labels used in plot titles and file names
const (
	plotL4         = "Landsat 4"
	plotL5         = "Landsat 5"
	plotL7         = "Landsat 7"
	plotL8         = "Landsat 8"
	plotL8TIRS1    = "Landsat 8 TIRS1"
	plotL8TIRS2    = "Landsat 8 TIRS2"
	plotTerra      = "Terra"
	plotTerraDaily = "Terra 09GA"
	plotAqua       = "Aqua"
	plotAquaDaily  = "Aqua 09GA"
	plotVIIRS      = "Viirs"
	plotVIIRSDaily = "Viirs 09GA"
	plotS2         = "Sentinel 2 MSI"
)

// SearchInfo pairs a sensor label with the statistics files to look for.
// It is written as a two element JSON array.
type SearchInfo struct {
	Key        string
	FilterList []string
}

// MarshalJSON implements json.Marshaler
func (s SearchInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{s.Key, s.FilterList})
}

// BandType is one plot: a band type label and where its statistics come from
type BandType struct {
	Name       string
	SearchList []SearchInfo
}

func search(key string, filters ...string) SearchInfo {
	return SearchInfo{Key: key, FilterList: filters}
}

// landsatBand searches the old and collection naming of L4-L7 plus L8
func landsatBand(tm, oli string) []SearchInfo {
	return []SearchInfo{
		search(plotL4, "LT4*"+tm, "LT04*"+tm),
		search(plotL5, "LT5*"+tm, "LT05*"+tm),
		search(plotL7, "LE7*"+tm, "LE07*"+tm),
		search(plotL8, "LC8*"+oli, "LC08*"+oli),
	}
}

// landsatTOA is landsatBand with OLI-only data included
func landsatTOA(tm, oli string) []SearchInfo {
	return []SearchInfo{
		search(plotL4, "LT4*"+tm, "LT04*"+tm),
		search(plotL5, "LT5*"+tm, "LT05*"+tm),
		search(plotL7, "LE7*"+tm, "LE07*"+tm),
		search(plotL8, "L[C,O]8*"+oli, "L[C,O]08*"+oli),
	}
}

func join(lists ...[]SearchInfo) []SearchInfo {
	var joined []SearchInfo
	for _, list := range lists {
		joined = append(joined, list...)
	}
	return joined
}

func modis(terra, aqua string) []SearchInfo {
	return []SearchInfo{search(plotTerra, terra), search(plotAqua, aqua)}
}

func emis(band string) []SearchInfo {
	return modis("MOD*Emis_"+band+".stats", "MYD*Emis_"+band+".stats")
}

func rrs(band string) []SearchInfo {
	return []SearchInfo{search(plotL8, "L[C,O]08*_rrs_band"+band+".stats")}
}

func s2(band string) []SearchInfo {
	return []SearchInfo{search(plotS2, "S2*_sr_band"+band+".stats")}
}

// PlotBandTypes is every plot the plot processor attempts. Band types with
// no matching statistics produce nothing.
var PlotBandTypes = []BandType{
	{"SR COASTAL AEROSOL", []SearchInfo{
		search(plotL8, "LC8*_sr_band1.stats", "LC08*_sr_band1.stats"),
		search(plotS2, "S2*_sr_band1.stats")}},
	{"SR Blue", join(landsatBand("_sr_band1.stats", "_sr_band2.stats"), s2("2"),
		modis("MOD*sur_refl_b03*.stats", "MYD*sur_refl_b03*.stats"))},
	{"SR Green", join(landsatBand("_sr_band2.stats", "_sr_band3.stats"), s2("3"),
		modis("MOD*sur_refl_b04*.stats", "MYD*sur_refl_b04*.stats"))},
	{"SR Red", join(landsatBand("_sr_band3.stats", "_sr_band4.stats"), s2("4"),
		modis("MOD*sur_refl_b01*.stats", "MYD*sur_refl_b01*.stats"),
		[]SearchInfo{search(plotVIIRS, "VNP*SurfReflect_I1*.stats")})},
	{"SR NIR", join(landsatBand("_sr_band4.stats", "_sr_band5.stats"), s2("8"),
		modis("MOD*sur_refl_b02*.stats", "MYD*sur_refl_b02*.stats"),
		[]SearchInfo{search(plotVIIRS, "VNP*SurfReflect_I2*.stats")})},
	{"SR SWIR1", join(landsatBand("_sr_band5.stats", "_sr_band6.stats"), s2("11"),
		modis("MOD*sur_refl_b06*.stats", "MYD*sur_refl_b06*.stats"),
		[]SearchInfo{search(plotVIIRS, "VNP*SurfReflect_I3*.stats")})},
	{"SR SWIR2", join(landsatBand("_sr_band7.stats", "_sr_band7.stats"), s2("12"),
		modis("MOD*sur_refl_b07*.stats", "MYD*sur_refl_b07*.stats"))},
	{"SR CIRRUS", []SearchInfo{
		search(plotL8, "LC8*_sr_band9.stats", "LC08*_sr_band9.stats"),
		search(plotS2, "S2*_sr_band10.stats")}},
	{"SR SWIR B5", modis("MOD*sur_refl*b05.stats", "MYD*sur_refl*b05.stats")},
	{"SR SWIR B3", []SearchInfo{search(plotVIIRS, "VNP*SurfReflect_I3_1.stats")}},
	{"Sentinel-2 SR B5", s2("5")},
	{"Sentinel-2 SR B6", s2("6")},
	{"Sentinel-2 SR B7", s2("7")},
	{"Sentinel-2 SR B8", s2("8a")},
	{"Sentinel-2 SR B9", s2("9")},
	{"BT Thermal", []SearchInfo{
		search(plotL4, "LT4*_bt_band6.stats", "LT04*_bt_band6.stats"),
		search(plotL5, "LT5*_bt_band6.stats", "LT05*_bt_band6.stats"),
		search(plotL7, "LE7*_bt_band6.stats", "LE07*_bt_band6.stats"),
		search(plotL8TIRS1, "LC8*_bt_band10.stats", "LC08*_bt_band10.stats"),
		search(plotL8TIRS2, "LC8*_bt_band11.stats", "LC08*_bt_band11.stats")}},
	{"TOA COASTAL AEROSOL", []SearchInfo{
		search(plotL8, "L[C,O]8*_toa_band1.stats", "L[C,O]08*_toa_band1.stats")}},
	{"TOA Blue", landsatTOA("_toa_band1.stats", "_toa_band2.stats")},
	{"TOA Green", landsatTOA("_toa_band2.stats", "_toa_band3.stats")},
	{"TOA Red", landsatTOA("_toa_band3.stats", "_toa_band4.stats")},
	{"TOA NIR", landsatTOA("_toa_band4.stats", "_toa_band5.stats")},
	{"TOA SWIR1", landsatTOA("_toa_band5.stats", "_toa_band6.stats")},
	{"TOA SWIR2", landsatTOA("_toa_band7.stats", "_toa_band7.stats")},
	{"TOA CIRRUS", []SearchInfo{
		search(plotL8, "L[C,O]8*_toa_band9.stats", "L[C,O]08*_toa_band9.stats")}},
	{"Emis Band 20", emis("20")},
	{"Emis Band 22", emis("22")},
	{"Emis Band 23", emis("23")},
	{"Emis Band 29", emis("29")},
	{"Emis Band 31", emis("31")},
	{"Emis Band 32", emis("32")},
	{"RRS Coastal", rrs("1")},
	{"RRS Blue", rrs("2")},
	{"RRS Green", rrs("3")},
	{"RRS Red", rrs("4")},
	{"RRS NIR", rrs("5")},
	{"RRS SWIR1", rrs("6")},
	{"RRS SWIR2", rrs("7")},
	{"CHLOR_A", []SearchInfo{search(plotL8, "L[C,O]08*_chlor_a.stats")}},
	{"LST Day", join(modis("MOD*LST_Day_*.stats", "MYD*LST_Day_*.stats"),
		landsatTOA("_st.stats", "_st.stats"))},
	{"LST Night", modis("MOD*LST_Night_*.stats", "MYD*LST_Night_*.stats")},
	{"NDVI", join(landsatBand("_sr_ndvi.stats", "_sr_ndvi.stats"),
		[]SearchInfo{search(plotS2, "S2*_sr_ndvi.stats")},
		modis("MOD*_NDVI.stats", "MYD*_NDVI.stats"),
		[]SearchInfo{
			search(plotTerraDaily, "MOD*_sr_ndvi.stats"),
			search(plotAquaDaily, "MYD*_sr_ndvi.stats"),
			search(plotVIIRSDaily, "VNP*_sr_ndvi.stats")})},
	{"EVI", join(landsatBand("_sr_evi.stats", "_sr_evi.stats"),
		[]SearchInfo{search(plotS2, "S2*_sr_evi.stats")},
		modis("MOD*_EVI.stats", "MYD*_EVI.stats"))},
	{"SAVI", join(landsatBand("_sr_savi.stats", "_sr_savi.stats"), []SearchInfo{search(plotS2, "S2*_sr_savi.stats")})},
	{"MSAVI", join(landsatBand("_sr_msavi.stats", "_sr_msavi.stats"), []SearchInfo{search(plotS2, "S2*_sr_msavi.stats")})},
	{"NBR", join(landsatBand("_sr_nbr.stats", "_sr_nbr.stats"), []SearchInfo{search(plotS2, "S2*_sr_nbr.stats")})},
	{"NBR2", join(landsatBand("_sr_nbr2.stats", "_sr_nbr2.stats"), []SearchInfo{search(plotS2, "S2*_sr_nrb2.stats")})},
	{"NDMI", join(landsatBand("_sr_ndmi.stats", "_sr_ndmi.stats"), []SearchInfo{search(plotS2, "S2*_sr_ndmi.stats")})},
}

// Plot combines the statistics of an order into plots
type Plot struct {
	*base
	BandTypes []BandType
}

// NewPlot validates the request
func NewPlot(env Env, req *model.ProductRequest) (*Plot, error) {
	b, err := newBase(env, req)
	if err != nil {
		return nil, err
	}
	return &Plot{base: b, BandTypes: PlotBandTypes}, nil
}

// Process builds and delivers the statistics product
func (p *Plot) Process(ctx context.Context) (*model.Delivery, error) {
	return p.process(ctx, p.processProduct)
}

// ProductName is <orderid>-statistics
func (p *Plot) ProductName() (string, error) {
	if p.productName == "" {
		p.productName = model.StatisticsProductName(p.req.OrderID)
	}
	return p.productName, nil
}

func (p *Plot) processProduct(ctx context.Context) (*model.Delivery, error) {
	err := p.stager.StageStatisticsData(ctx, p.dirs.Output, p.dirs.Stage, p.dirs.Work, p.req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := p.processStats(ctx); err != nil {
		return nil, err
	}
	return p.distributeProduct(ctx, p.ProductName)
}

// processStats plots every band type. Missing statistics are skipped by
// the plotting tool.
func (p *Plot) processStats(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, bandType := range p.BandTypes {
		bandType := bandType
		g.Go(func() error {
			list, err := searchJSON(bandType.SearchList)
			if err != nil {
				return err
			}
			return p.run(ctx, "SUMMARY STATISTICS AND PLOTTING", "espa_plotting.py",
				"--band_type", bandType.Name, "--search_list", list)
		})
	}
	return g.Wait()
}
