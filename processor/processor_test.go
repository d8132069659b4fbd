package processor

import (
	"archive/tar"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djzelenak/espa-worker/command/commandtest"
	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/metadata"
	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/parameters"
)

const (
	lc08ID  = "LC08_L1TP_012029_20170213_20170415_01_T1"
	terraID = "MOD09GA.A2019221.h11v04.006.2019223032451"
	viirsID = "VNP09GA.A2019059.H30V06.001.2019061021144"

	sentinelESPAID = "S2A_MSI_L1C_T14TPP_20190910_20190910"
	sentinelM2MID  = "L1C_T14TPP_A022031_20190910T172721"
)

var fixedTime = time.Date(2019, 1, 2, 3, 4, 5, 0, time.UTC)

const espaXML = `<?xml version="1.0" encoding="UTF-8"?>
<espa_metadata version="2.1">
  <bands>
    <band product="L1TP" name="b1"><file_name>%[1]s_b1.img</file_name></band>
    <band product="sr_refl" name="sr_band1"><file_name>%[1]s_sr_band1.img</file_name></band>
    <band product="toa_refl" name="toa_band1"><file_name>%[1]s_toa_band1.img</file_name></band>
    <band product="elevation" name="elevation"><file_name>%[1]s_elevation.img</file_name></band>
  </bands>
</espa_metadata>
`

func xmlFor(id string) string {
	return strings.Replace(espaXML, "%[1]s", id, -1)
}

type testEnv struct {
	env     Env
	runner  *commandtest.Runner
	root    string
	distDir string
}

func newTestEnv(t *testing.T) testEnv {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Set("espa_work_dir", filepath.Join(root, "work"))
	cfg.Set("espa_distribution_dir", filepath.Join(root, "dist"))
	cfg.Set("espa_distribution_method", config.DistributionMethodLocal)
	cfg.Set("espa_schema", filepath.Join(root, "missing.xsd"))

	runner := &commandtest.Runner{}
	return testEnv{
		env: Env{
			Config:        cfg,
			Runner:        runner,
			Now:           func() time.Time { return fixedTime },
			RetryInterval: time.Millisecond,
		},
		runner:  runner,
		root:    root,
		distDir: filepath.Join(root, "dist"),
	}
}

// writeInputArchive builds a gzipped tarball and returns its file:// URL
func writeInputArchive(t *testing.T, dir string, files map[string]string) string {
	path := filepath.Join(dir, "input.tar.gz")
	out, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for name, contents := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(contents))}))
		_, err := tw.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, out.Close())
	return "file://" + path
}

func TestReprojectionArgs_None(t *testing.T) {
	o := parameters.Options{}
	require.NoError(t, parameters.ValidateReprojection(o, lc08ID, nil))

	assert.Equal(t, []string{"--xml", "x.xml", "none", "--resample-method", "near", "--output-format", "envi"},
		ReprojectionArgs(o, "x.xml"))
}

func TestReprojectionArgs_UTM(t *testing.T) {
	o := parameters.Options{"reproject": true, "target_projection": "utm", "utm_zone": 17, "utm_north_south": "north"}
	require.NoError(t, parameters.ValidateReprojection(o, lc08ID, nil))

	assert.Equal(t, []string{"--xml", "x.xml", "utm", "--zone", "17", "--north-south", "north",
		"--resample-method", "near", "--pixel-size", "30.0", "--pixel-size-units", "meters",
		"--output-format", "envi"}, ReprojectionArgs(o, "x.xml"))
}

func TestReprojectionArgs_PolarStereographic(t *testing.T) {
	o := parameters.Options{"reproject": true, "target_projection": "ps", "latitude_true_scale": -71,
		"longitude_pole": "0", "false_easting": 0, "false_northing": 0}
	require.NoError(t, parameters.ValidateReprojection(o, lc08ID, nil))

	assert.Equal(t, []string{"--xml", "x.xml", "ps",
		"--latitude-true-scale", "-71.0", "--longitude-pole", "0.0", "--origin-latitude", "-90.0",
		"--false-easting", "0.0", "--false-northing", "0.0",
		"--resample-method", "near", "--pixel-size", "30.0", "--pixel-size-units", "meters",
		"--output-format", "envi"}, ReprojectionArgs(o, "x.xml"))
}

func TestReprojectionArgs_Sinusoidal(t *testing.T) {
	o := parameters.Options{"reproject": true, "target_projection": "sinu", "central_meridian": 0,
		"false_easting": 0, "false_northing": 0, "resample_method": "bilinear"}
	require.NoError(t, parameters.ValidateReprojection(o, lc08ID, nil))

	assert.Equal(t, []string{"--xml", "x.xml", "sinu",
		"--central-meridian", "0.0", "--false-easting", "0.0", "--false-northing", "0.0",
		"--resample-method", "bilinear", "--pixel-size", "30.0", "--pixel-size-units", "meters",
		"--output-format", "envi"}, ReprojectionArgs(o, "x.xml"))
}

func TestReprojectionArgs_AEAWithExtents(t *testing.T) {
	o := parameters.Options{
		"reproject": true, "target_projection": "aea", "datum": "wgs84",
		"std_parallel_1": 29.5, "std_parallel_2": 45.5, "origin_lat": 23.0,
		"central_meridian": -96.0, "false_easting": 0.0, "false_northing": 0.0,
		"image_extents": true, "image_extents_units": "meters",
		"minx": 1.0, "miny": 2.0, "maxx": 3.5, "maxy": 4.0,
		"resample_method": "cubic",
	}
	require.NoError(t, parameters.ValidateReprojection(o, lc08ID, nil))

	assert.Equal(t, []string{"--xml", "x.xml", "aea",
		"--datum", "WGS84", "--central-meridian", "-96.0", "--origin-latitude", "23.0",
		"--std-parallel-1", "29.5", "--std-parallel-2", "45.5",
		"--false-easting", "0.0", "--false-northing", "0.0",
		"--resample-method", "cubic", "--pixel-size", "30.0", "--pixel-size-units", "meters",
		"--extent-minx", "1.0", "--extent-maxx", "3.5", "--extent-miny", "2.0", "--extent-maxy", "4.0",
		"--extent-units", "meters", "--output-format", "envi"}, ReprojectionArgs(o, "x.xml"))
}

func TestArgument(t *testing.T) {
	assert.Equal(t, "None", argument(nil))
	assert.Equal(t, "30.0", argument(30.0))
	assert.Equal(t, "0.0002695", argument(0.0002695))
	assert.Equal(t, "True", argument(true))
	assert.Equal(t, "17", argument(17))
}

func TestGetInstance(t *testing.T) {
	te := newTestEnv(t)
	cases := map[string]string{
		"LT05_L1TP_038038_19950624_20160302_01_T1": "LandsatTMProcessor",
		"LE07_L1TP_026027_20170101_20170127_01_T1": "LandsatETMProcessor",
		"LC08_L1TP_012029_20170213_20170415_01_T1": "LandsatOLITIRSProcessor",
		"LO08_L1TP_012029_20170213_20170415_01_T1": "LandsatOLIProcessor",
	}
	for id, expected := range cases {
		req := &model.ProductRequest{OrderID: "o", Scene: id, ProductType: "landsat", Options: parameters.Options{}}
		p, err := GetInstance(te.env, req)
		require.NoError(t, err, id)
		assert.Equal(t, expected, p.(*Landsat).String())
	}

	p, err := GetInstance(te.env, &model.ProductRequest{OrderID: "o", Scene: terraID, ProductType: "modis", Options: parameters.Options{}})
	require.NoError(t, err)
	assert.Equal(t, SatelliteTerra, p.(*Modis).Satellite)

	p, err = GetInstance(te.env, &model.ProductRequest{OrderID: "o", Scene: "VNP09GA.A2019059.H30V06.001.2019061021144", ProductType: "viirs", Options: parameters.Options{}})
	require.NoError(t, err)
	assert.IsType(t, &VIIRS{}, p)

	p, err = GetInstance(te.env, &model.ProductRequest{OrderID: "o", Scene: "S2A_MSI_L1C_T16TDS_20190723_20190723", ProductType: "sentinel", Options: parameters.Options{}})
	require.NoError(t, err)
	assert.IsType(t, &Sentinel{}, p)

	p, err = GetInstance(te.env, &model.ProductRequest{OrderID: "o", Scene: model.PlotProductID, ProductType: "plot", Options: parameters.Options{}})
	require.NoError(t, err)
	assert.IsType(t, &Plot{}, p)

	_, err = GetInstance(te.env, &model.ProductRequest{OrderID: "o", Scene: "LT08_L1GT_166003_20150603_20170226_01_T2", ProductType: "landsat", Options: parameters.Options{}})
	assert.True(t, errors.Is(err, ErrNotImplemented))
	assert.Contains(t, err.Error(), "A processor for [LT08_L1GT_166003_20150603_20170226_01_T2] has not been implemented")
}

func TestGetInstance_MissingOptions(t *testing.T) {
	te := newTestEnv(t)
	_, err := GetInstance(te.env, &model.ProductRequest{OrderID: "o", Scene: lc08ID, ProductType: "landsat"})
	assert.EqualError(t, err, "Missing required input parameter [options]")
}

func TestLandsat_OLIRejectsUnavailableProducts(t *testing.T) {
	te := newTestEnv(t)
	req := &model.ProductRequest{OrderID: "o", Scene: "LO08_L1TP_012029_20170213_20170415_01_T1",
		ProductType: "landsat", Options: parameters.Options{"include_sr": true}}

	_, err := NewLandsat(te.env, req, InstrumentOLI)

	assert.EqualError(t, err, "include_sr is an unavailable product option for OLI-Only data")
}

func TestLandsat_Process(t *testing.T) {
	// Mock
	te := newTestEnv(t)
	url := writeInputArchive(t, te.root, map[string]string{
		lc08ID + "_MTL.txt":       "GROUP = L1_METADATA_FILE\nEND\n",
		lc08ID + ".xml":           xmlFor(lc08ID),
		lc08ID + "_sr_band1.img":  "sr",
		lc08ID + "_sr_band1.hdr":  "sr",
		lc08ID + "_toa_band1.img": "toa",
		lc08ID + "_b1.img":        "l1",
	})
	req := &model.ProductRequest{OrderID: "order-1", Scene: lc08ID, ProductType: "landsat", DownloadURL: url,
		Options: parameters.Options{"include_sr": true, "keep_directory": true}}
	p, err := GetInstance(te.env, req)
	require.NoError(t, err)

	// Tested code
	delivery, err := p.Process(context.Background())

	// Asserts
	require.NoError(t, err)
	xml := lc08ID + ".xml"
	assert.Equal(t, []string{
		"convert_lpgs_to_espa --mtl " + lc08ID + "_MTL.txt --del_src_files",
		"clip_band_misalignment --xml " + xml,
		"generate_pixel_qa --xml " + xml,
		"surface_reflectance.py --xml " + xml + " --write_toa",
		"dilate_pixel_qa --xml " + xml + " --bit 5 --distance 3",
		"cfmask_water_detection --xml " + xml,
	}, te.runner.Lines())

	name := "LC080120292017021301T1-SC20190102030405"
	assert.Equal(t, filepath.Join(te.distDir, "order-1", name+".tar.gz"), delivery.ProductFile)
	assert.Equal(t, filepath.Join(te.distDir, "order-1", name+".md5"), delivery.CksumFile)
	assert.FileExists(t, delivery.ProductFile)

	workDir := filepath.Join(te.root, "work", "order-1-"+lc08ID, "work")
	bands, err := metadata.LoadBands(filepath.Join(workDir, xml))
	require.NoError(t, err)
	require.Len(t, bands, 1)
	assert.Equal(t, "sr_refl", bands[0].Product)
	assert.NoFileExists(t, filepath.Join(workDir, lc08ID+"_toa_band1.img"))
	assert.FileExists(t, filepath.Join(workDir, lc08ID+"_sr_band1.img"))

	p.RemoveProductDirectory()
	assert.DirExists(t, workDir, "keep_directory was requested")
}

func TestLandsat_StageFailure(t *testing.T) {
	te := newTestEnv(t)
	req := &model.ProductRequest{OrderID: "order-1", Scene: lc08ID, ProductType: "landsat",
		DownloadURL: "gopher://nowhere/" + lc08ID, Options: parameters.Options{"include_sr": true}}
	p, err := GetInstance(te.env, req)
	require.NoError(t, err)

	_, err = p.Process(context.Background())

	assert.Error(t, err)
	assert.Empty(t, te.runner.Calls())
	assert.NoDirExists(t, filepath.Join(te.root, "work", "order-1-"+lc08ID), "directory removed after failure")
}

func TestLandsat_Indices(t *testing.T) {
	te := newTestEnv(t)
	req := &model.ProductRequest{OrderID: "o", Scene: lc08ID, ProductType: "landsat",
		Options: parameters.Options{"include_sr_ndvi": true, "include_sr_evi": true, "include_st": true,
			"st_algorithm": "single_channel", "reanalysis_source": "MERRA2"}}
	p, err := NewLandsat(te.env, req, InstrumentOLITIRS)
	require.NoError(t, err)

	assert.Equal(t, []string{"--xml", lc08ID + ".xml", "--ndvi", "--evi"}, p.indexArgs())
	assert.Equal(t, []string{"--xml", lc08ID + ".xml", "--write_toa"}, p.srArgs())
	assert.Equal(t, []string{"--xml", lc08ID + ".xml", "--keep-intermediate-data", "--st_algorithm", "single_channel",
		"--reanalysis", "MERRA2"}, p.stArgs())
}

func TestModis_Process(t *testing.T) {
	// Mock
	te := newTestEnv(t)
	input := filepath.Join(te.root, "granule.hdf")
	require.NoError(t, os.WriteFile(input, []byte("hdf"), 0644))
	te.runner.Handler = func(call commandtest.Call) (string, error) {
		if call.Name == "convert_modis_to_espa" {
			return "converted", os.WriteFile(filepath.Join(call.Dir, terraID+".xml"), []byte(xmlFor(terraID)), 0644)
		}
		return "", nil
	}
	req := &model.ProductRequest{OrderID: "order-2", Scene: terraID, ProductType: "modis", DownloadURL: "file://" + input,
		Options: parameters.Options{"include_modis_ndvi": true, "keep_directory": true}}
	p, err := GetInstance(te.env, req)
	require.NoError(t, err)

	// Tested code
	delivery, err := p.Process(context.Background())

	// Asserts
	require.NoError(t, err)
	assert.Equal(t, []string{
		"convert_modis_to_espa --hdf " + terraID + ".hdf --del_src_files",
		"spectral_indices.py --xml " + terraID + ".xml --ndvi",
	}, te.runner.Lines())
	assert.True(t, strings.HasPrefix(filepath.Base(delivery.ProductFile), "MOD09GAh11v042019221006-SC20190102030405"))

	bands, err := metadata.LoadBands(filepath.Join(te.root, "work", "order-2-"+terraID, "work", terraID+".xml"))
	require.NoError(t, err)
	for _, band := range bands {
		assert.NotEqual(t, "sr_refl", band.Product)
	}
}

func TestVIIRS_Process(t *testing.T) {
	// Mock
	te := newTestEnv(t)
	input := filepath.Join(te.root, "granule.h5")
	require.NoError(t, os.WriteFile(input, []byte("h5"), 0644))
	te.runner.Handler = func(call commandtest.Call) (string, error) {
		if call.Name == "convert_viirs_to_espa" {
			return "", os.WriteFile(filepath.Join(call.Dir, viirsID+".xml"), []byte(xmlFor(viirsID)), 0644)
		}
		return "", nil
	}
	req := &model.ProductRequest{OrderID: "order-4", Scene: viirsID, ProductType: "viirs", DownloadURL: "file://" + input,
		Options: parameters.Options{"include_viirs_ndvi": true, "keep_directory": true}}
	p, err := GetInstance(te.env, req)
	require.NoError(t, err)

	// Tested code
	delivery, err := p.Process(context.Background())

	// Asserts
	require.NoError(t, err)
	assert.Equal(t, []string{
		"convert_viirs_to_espa --hdf " + viirsID + ".h5 --del_src_files",
		"spectral_indices.py --xml " + viirsID + ".xml --ndvi",
	}, te.runner.Lines())
	name := "VNP09GAh30v062019059001-SC20190102030405"
	assert.Equal(t, filepath.Join(te.distDir, "order-4", name+".tar.gz"), delivery.ProductFile)
	assert.FileExists(t, delivery.ProductFile)

	workDir := filepath.Join(te.root, "work", "order-4-"+viirsID, "work")
	bands, err := metadata.LoadBands(filepath.Join(workDir, viirsID+".xml"))
	require.NoError(t, err)
	for _, band := range bands {
		assert.NotEqual(t, "sr_refl", band.Product)
	}
}

func TestSentinel_Process(t *testing.T) {
	// Mock
	te := newTestEnv(t)
	input := filepath.Join(te.root, "download.zip")
	require.NoError(t, os.WriteFile(input, []byte("zip"), 0644))
	te.runner.Handler = func(call commandtest.Call) (string, error) {
		switch call.Name {
		case "unpackage_s2.py":
			granule := filepath.Join(call.Args[3], "S2A_MSIL1C_20190910T172721.SAFE", "GRANULE")
			if err := os.MkdirAll(granule, 0755); err != nil {
				return "", err
			}
			if err := os.WriteFile(filepath.Join(granule, "T14TPP_20190910T172721_B01.jp2"), []byte("b01"), 0644); err != nil {
				return "", err
			}
			return "", os.WriteFile(filepath.Join(filepath.Dir(granule), "MTD_MSIL1C.xml"), []byte("<x/>"), 0644)
		case "convert_sentinel_to_espa":
			return "", os.WriteFile(filepath.Join(call.Dir, sentinelESPAID+".xml"), []byte(xmlFor(sentinelESPAID)), 0644)
		}
		return "", nil
	}
	req := &model.ProductRequest{OrderID: "order-5", Scene: sentinelM2MID, ProductType: "sentinel", DownloadURL: "file://" + input,
		Options: parameters.Options{"include_s2_ndvi": true, "include_s2_evi": true, "keep_directory": true}}
	p, err := GetInstance(te.env, req)
	require.NoError(t, err)

	// Tested code
	delivery, err := p.Process(context.Background())

	// Asserts
	require.NoError(t, err)
	workDir := filepath.Join(te.root, "work", "order-5-"+sentinelM2MID, "work")
	xml := sentinelESPAID + ".xml"
	assert.Equal(t, []string{
		"unpackage_s2.py -i " + filepath.Join(workDir, sentinelM2MID+".zip") + " -o " + workDir,
		"convert_sentinel_to_espa --del_src_files",
		"surface_reflectance.py --xml " + xml,
		"spectral_indices.py --xml " + xml + " --ndvi --evi",
	}, te.runner.Lines())

	name := "S2AMSIL1CT14TPP20190910-SC20190102030405"
	assert.Equal(t, filepath.Join(te.distDir, "order-5", name+".tar.gz"), delivery.ProductFile)
	assert.FileExists(t, delivery.ProductFile)

	assert.NoFileExists(t, filepath.Join(workDir, sentinelM2MID+".zip"))
	assert.NoDirExists(t, filepath.Join(workDir, "S2A_MSIL1C_20190910T172721.SAFE"))
	assert.DirExists(t, filepath.Join(workDir, "GRANULE"), "SAFE contents moved up")
	assert.NoFileExists(t, filepath.Join(workDir, "MTD_MSIL1C.xml"), "level-1 sources removed")

	bands, err := metadata.LoadBands(filepath.Join(workDir, xml))
	require.NoError(t, err)
	for _, band := range bands {
		assert.NotEqual(t, "sr_refl", band.Product)
	}
}

func TestSentinel_ProductNameWithoutConvertedXML(t *testing.T) {
	te := newTestEnv(t)
	req := &model.ProductRequest{OrderID: "o", Scene: sentinelM2MID, ProductType: "sentinel", Options: parameters.Options{}}
	p, err := NewSentinel(te.env, req)
	require.NoError(t, err)
	p.dirs.Work = t.TempDir()

	_, err = p.ProductName()

	assert.Equal(t, ErrNoESPAProductID, err)
}

func TestPlot_Process(t *testing.T) {
	// Mock
	te := newTestEnv(t)
	stats := filepath.Join(te.distDir, "order-3", "stats")
	require.NoError(t, os.MkdirAll(stats, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(stats, lc08ID+"_sr_band1.stats"), []byte("stats"), 0644))
	req := &model.ProductRequest{OrderID: "order-3", Scene: model.PlotProductID, ProductType: model.ProductTypePlot,
		Options: parameters.Options{"keep_directory": true}}
	p, err := GetInstance(te.env, req)
	require.NoError(t, err)

	// Tested code
	delivery, err := p.Process(context.Background())

	// Asserts
	require.NoError(t, err)
	assert.Len(t, te.runner.Calls(), 47)
	assert.Len(t, PlotBandTypes, 47)
	for _, call := range te.runner.Calls() {
		assert.Equal(t, "espa_plotting.py", call.Name)
	}
	assert.Equal(t, filepath.Join(te.distDir, "order-3", "order-3-statistics.tar.gz"), delivery.ProductFile)
	assert.FileExists(t, filepath.Join(te.root, "work", "order-3-plot", "work", lc08ID+"_sr_band1.stats"))
}

func TestSearchInfo_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]SearchInfo{search(plotL8, "LC8*_sr_band1.stats", "LC08*_sr_band1.stats")})

	require.NoError(t, err)
	assert.JSONEq(t, `[["Landsat 8", ["LC8*_sr_band1.stats", "LC08*_sr_band1.stats"]]]`, string(data))
}

func TestProductName_Memoized(t *testing.T) {
	te := newTestEnv(t)
	now := fixedTime
	te.env.Now = func() time.Time {
		now = now.Add(time.Hour)
		return now
	}
	req := &model.ProductRequest{OrderID: "o", Scene: lc08ID, ProductType: "landsat", Options: parameters.Options{}}
	p, err := NewLandsat(te.env, req, InstrumentOLITIRS)
	require.NoError(t, err)

	first, err := p.ProductName()
	require.NoError(t, err)
	second, err := p.ProductName()
	require.NoError(t, err)

	assert.Equal(t, "LC080120292017021301T1-SC20190102040405", first)
	assert.Equal(t, first, second)
}
