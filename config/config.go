// Package config holds the processing configuration shared by the worker
// and the science applications it runs.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Distribution methods
const (
	DistributionMethodLocal  = "local"
	DistributionMethodRemote = "remote"
	DistributionMethodBlob   = "blob"
)

// SkipAPI disables all production API calls when used as espa_api.
const SkipAPI = "skip_api"

const defaultAuxDir = "/usr/local/auxiliaries/"

const defaultGDALSkipDrivers = "aaigrid ace2 adrg aig airsar arg blx bmp bsb bt ceos coasp cosar " +
	"cpg ctable2 ctg dimap dipex doq1 doq2 dted e00grid ecrgtoc eir " +
	"elas ers esat fast fit fujibas gff gif grib gsag gsbg gs7bg gsc " +
	"gtx gxf hf2 hfa ida ilwis ingr iris isis2 isis3 jaxapalsar jdem jpeg " +
	"kro l1b lan lcp leveller loslas map mem mff mff2 msgn ndf ngsgeoid " +
	"nitf ntv2 nwt_grc nwt_grd paux pcidsk pcraster pdf pds rik rmf rpftoc " +
	"rs2 rst saga sar_ceos sdts sgi snodas srp srtmhgt terragen til " +
	"usgsdem vrt xpm xyz zmap"

var passwordKeys = []string{"urs_password"}

// Config is a flat set of lower-case keys. Every key is also exported to the
// environment, upper-cased, for the science applications.
type Config struct {
	values map[string]string
}

// Default returns the built-in configuration. AUX_DIR, when set, relocates
// the auxiliary data paths.
func Default() *Config {
	auxDir := os.Getenv("AUX_DIR")
	if auxDir == "" {
		auxDir = defaultAuxDir
	}
	aux := func(elem ...string) string {
		return filepath.Join(append([]string{auxDir}, elem...)...)
	}

	return &Config{values: map[string]string{
		"aster_ged_server_dir":                 "/ASTT/AG100.003/2000.01.01/",
		"aster_ged_server_name":                "localhost:5000",
		"aster_ged_server_path":                "/ASTT/AG100.003/2000.01.01/",
		"espa_api":                             "http://localhost:9876/production-api/v0",
		"espa_cache_host_list":                 "",
		"espa_datatype":                        "landsat",
		"espa_distribution_bucket":             "",
		"espa_distribution_dir":                "/output_product_cache",
		"espa_distribution_method":             DistributionMethodLocal,
		"espa_elevation_dir":                   aux("elevation"),
		"espa_group":                           "",
		"espa_jobscale":                        "1",
		"espa_land_mass_polygon":               aux("land_water_polygon", "land_no_buf.ply"),
		"espa_min_request_duration_in_seconds": "0",
		"espa_priority":                        "",
		"espa_schema":                          "/usr/local/schema/espa_internal_metadata_v2_1.xsd",
		"espa_user":                            "",
		"espa_work_dir":                        "/mnt/mesos/sandbox",
		"espa_worker_concurrency":              "1",
		"esun":                                 "/usr/local/espa-cloud-masking/cfmask/static_data",
		"gdal_skip":                            defaultGDALSkipDrivers,
		"ias_data_dir":                         aux("gls-dem"),
		"immutable_distribution":               "off",
		"include_resource_report":              "false",
		"init_sleep_seconds":                   "5",
		"ledaps_aux_dir":                       aux("L17"),
		"lasrc_aux_dir":                        aux("L8"),
		"l8_aux_dir":                           aux("L8"),
		"modtran_data_dir":                     aux("MODTRAN_DATA"),
		"modtran_data_path":                    aux("MODTRAN_DATA"),
		"modtran_path":                         "/usr/local/bin",
		"ocdataroot":                           aux("ocdata"),
		"omp_num_threads":                      "1",
		"pigz_num_threads":                     "1",
		"pythonpath":                           "/usr/local/python",
		"st_aux_dir":                           aux("LST", "NARR"),
		"st_aux_path":                          aux("LST", "NARR"),
		"st_data_dir":                          "/usr/local/espa-surface-temperature/st/static_data",
		"st_data_path":                         "/usr/local/espa-surface-temperature/st/static_data",
		"st_fp_aux_path":                       aux("LST", "fp"),
		"st_fpit_aux_path":                     aux("LST", "fpit"),
		"st_merra_aux_path":                    aux("LST", "merra2"),
		"urs_login":                            "login",
		"urs_machine":                          "urs.earthdata.nasa.gov",
		"urs_password":                         "password",
	}}
}

// Load layers an optional TOML file over the defaults, then the environment
// over both. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		var fileValues map[string]interface{}
		if _, err := toml.DecodeFile(path, &fileValues); err != nil {
			return nil, errors.Wrapf(err, "reading configuration file %s", path)
		}
		for key, value := range fileValues {
			str, err := cast.ToStringE(value)
			if err != nil {
				return nil, errors.Wrapf(err, "configuration key %s", key)
			}
			cfg.Set(key, str)
		}
	}

	for key := range cfg.values {
		if value := os.Getenv(strings.ToUpper(key)); value != "" {
			cfg.values[key] = value
		}
	}

	return cfg, nil
}

// Get returns the value for key, or "" if it is not set.
func (c *Config) Get(key string) string {
	return c.values[strings.ToLower(key)]
}

// Lookup returns the value for key and whether it is set to something.
func (c *Config) Lookup(key string) (string, bool) {
	value, ok := c.values[strings.ToLower(key)]
	return value, ok && value != ""
}

// Set stores value under key.
func (c *Config) Set(key, value string) {
	c.values[strings.ToLower(key)] = value
}

// Int returns the value for key as an int, or fallback if it is not numeric.
func (c *Config) Int(key string, fallback int) int {
	value, err := cast.ToIntE(strings.TrimSpace(c.Get(key)))
	if err != nil {
		return fallback
	}
	return value
}

// Duration reads the value for key as a number of seconds, or as a Go
// duration string such as "90s". A missing or malformed value gives fallback.
func (c *Config) Duration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(c.Get(key))
	if seconds, err := cast.ToFloat64E(value); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}

// Bool interprets the value for key. "on" and "yes" count as true.
func (c *Config) Bool(key string) bool {
	value := strings.ToLower(strings.TrimSpace(c.Get(key)))
	switch value {
	case "on", "yes", "y":
		return true
	case "off", "no", "n", "none", "":
		return false
	}
	return cast.ToBool(value)
}

// Keys returns every configured key in sorted order.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ExportEnvironment sets UPPER(key)=value for every key.
func (c *Config) ExportEnvironment() error {
	for key, value := range c.values {
		if err := os.Setenv(strings.ToUpper(key), value); err != nil {
			return errors.Wrapf(err, "exporting %s", key)
		}
	}
	return nil
}

// Redacted returns a copy of the values that is safe to log.
func (c *Config) Redacted() map[string]string {
	out := make(map[string]string, len(c.values))
	for key, value := range c.values {
		out[key] = value
	}
	for _, key := range passwordKeys {
		if _, ok := out[key]; ok {
			out[key] = "XXXXXXX"
		}
	}
	return out
}

func (c *Config) APIURL() string { return c.Get("espa_api") }

func (c *Config) WorkDir() string { return c.Get("espa_work_dir") }

func (c *Config) DistributionDir() string { return c.Get("espa_distribution_dir") }

func (c *Config) DistributionBucket() string { return c.Get("espa_distribution_bucket") }

func (c *Config) User() string { return c.Get("espa_user") }

func (c *Config) Group() string { return c.Get("espa_group") }

func (c *Config) Schema() string { return c.Get("espa_schema") }

// DistributionMethod returns local, remote or blob. Anything unrecognised
// is treated as local.
func (c *Config) DistributionMethod() string {
	switch method := strings.ToLower(c.Get("espa_distribution_method")); method {
	case DistributionMethodRemote, DistributionMethodBlob:
		return method
	}
	return DistributionMethodLocal
}

// CacheHosts splits espa_cache_host_list on commas and whitespace.
func (c *Config) CacheHosts() []string {
	return strings.FieldsFunc(c.Get("espa_cache_host_list"), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// PigzThreads is pigz_num_threads, or 1 when that is not a positive number.
func (c *Config) PigzThreads() int {
	threads := c.Int("pigz_num_threads", PigzMultithreading)
	if threads <= 0 {
		return PigzMultithreading
	}
	return threads
}

// URSCredentials returns the Earthdata login machine, user and password.
func (c *Config) URSCredentials() (machine, login, password string) {
	return c.Get("urs_machine"), c.Get("urs_login"), c.Get("urs_password")
}

func (c *Config) ImmutableDistribution() bool { return c.Bool("immutable_distribution") }

func (c *Config) IncludeResourceReport() bool { return c.Bool("include_resource_report") }

// MinRequestDuration is the shortest time a product request may take.
func (c *Config) MinRequestDuration() time.Duration {
	return c.Duration("espa_min_request_duration_in_seconds", 0)
}

// WorkerConcurrency is the number of products processed at once, at least 1.
func (c *Config) WorkerConcurrency() int {
	if n := c.Int("espa_worker_concurrency", 1); n > 0 {
		return n
	}
	return 1
}
