// Package parameters validates the options that come with a product request.
package parameters

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/sensor"
)

// Supported values
var (
	ValidOutputFormats     = []string{"envi", "gtiff", "hdf-eos2", "netcdf"}
	ValidResampleMethods   = []string{"near", "bilinear", "cubic", "cubicspline", "lanczos"}
	ValidPixelSizeUnits    = []string{"meters", "dd"}
	ValidImageExtentsUnits = []string{"meters", "dd"}
	ValidProjections       = []string{"sinu", "aea", "utm", "ps", "lonlat"}
	ValidNS                = []string{"north", "south"}
	// WGS84 should always be first
	ValidDatums = []string{"WGS84", "NAD27", "NAD83"}
)

// Options is the free-form option set of a product request.
type Options map[string]interface{}

// TestForParameter reports whether key is present with a value that is
// neither nil nor the empty string.
func TestForParameter(params map[string]interface{}, key string) bool {
	value, ok := params[key]
	if !ok || value == nil {
		return false
	}
	if str, isString := value.(string); isString && str == "" {
		return false
	}
	return true
}

// Has is TestForParameter for these options.
func (o Options) Has(key string) bool {
	return TestForParameter(o, key)
}

// Bool treats the value the way a request author would: JSON booleans,
// "true"/"false" strings and numbers all work. Any other non-empty string
// counts as true.
func (o Options) Bool(key string) bool {
	if !o.Has(key) {
		return false
	}
	switch value := o[key].(type) {
	case float64:
		return value != 0
	case string:
		if b, err := cast.ToBoolE(value); err == nil {
			return b
		}
		return true
	}
	value, err := cast.ToBoolE(o[key])
	if err != nil {
		return true
	}
	return value
}

// String returns the value as a string, "" when missing.
func (o Options) String(key string) string {
	if !o.Has(key) {
		return ""
	}
	return cast.ToString(o[key])
}

// Float returns the value as a float64.
func (o Options) Float(key string) (float64, error) {
	value, err := cast.ToFloat64E(o[key])
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", key)
	}
	return value, nil
}

// SetDefault stores value under key unless the key already has a value.
// It returns true when the default was applied.
func (o Options) SetDefault(key string, value interface{}) bool {
	if o.Has(key) {
		return false
	}
	o[key] = value
	return true
}

var credentialKeys = []string{"source_username", "destination_username", "source_pw", "destination_pw"}

// Masked returns a copy with the transfer credentials hidden, for logging.
func (o Options) Masked() Options {
	masked := make(Options, len(o)+len(credentialKeys))
	for key, value := range o {
		masked[key] = value
	}
	for _, key := range credentialKeys {
		masked[key] = "XXXXXXX"
	}
	return masked
}

// Keys returns the option names in sorted order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func missing(key string) error {
	return fmt.Errorf("Missing %s parameter", key)
}

func invalidChoice(key string, value interface{}, valid []string) error {
	return fmt.Errorf("Invalid %s [%v]: Argument must be one of [%s]", key, value, strings.Join(valid, ", "))
}

// requireFloats converts each key to float64 in place, failing on the
// first one that is missing.
func (o Options) requireFloats(keys ...string) error {
	for _, key := range keys {
		if !o.Has(key) {
			return missing(key)
		}
		value, err := o.Float(key)
		if err != nil {
			return err
		}
		o[key] = value
	}
	return nil
}

// utmZone reads a zone number. Strings are parsed as decimal so that a
// zero padded "08" is zone 8.
func utmZone(value interface{}) (int, error) {
	s, ok := value.(string)
	if !ok {
		return cast.ToIntE(value)
	}
	s = strings.TrimSpace(s)
	if zone, err := strconv.Atoi(s); err == nil {
		return zone, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, errors.Errorf("unable to parse %q as a zone number", s)
	}
	return int(f), nil
}

// ValidateReprojection checks the customization options and fills in every
// default the reprojection command needs. Values are coerced to numbers in
// place.
func ValidateReprojection(o Options, productID string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if o.SetDefault("projection", nil) {
		logger.Warn("projection: missing defaulting to None")
	}
	if o.SetDefault("resample_method", "near") {
		logger.Warn("resample_method: missing defaulting to near")
	}
	for _, key := range []string{"reproject", "image_extents", "resize"} {
		if o.SetDefault(key, false) {
			logger.Warn(fmt.Sprintf("%s: missing defaulting to False", key))
		}
	}

	if o.Bool("reproject") {
		if err := validateTargetProjection(o); err != nil {
			return err
		}
	}

	if method := o.String("resample_method"); !contains(ValidResampleMethods, method) {
		return invalidChoice("resample_method", method, ValidResampleMethods)
	}

	if o.Bool("image_extents") {
		if !o.Has("image_extents_units") {
			return missing("image_extents_units")
		}
		if units := o.String("image_extents_units"); !contains(ValidImageExtentsUnits, units) {
			return invalidChoice("image_extents_units", units, ValidImageExtentsUnits)
		}
		if err := o.requireFloats("minx", "miny", "maxx", "maxy"); err != nil {
			return err
		}
	} else {
		for _, key := range []string{"minx", "miny", "maxx", "maxy", "image_extents_units"} {
			o[key] = nil
		}
	}

	if o.Bool("resize") {
		if err := o.requireFloats("pixel_size"); err != nil {
			return err
		}
		if !o.Has("pixel_size_units") {
			return missing("pixel_size_units")
		}
		if units := o.String("pixel_size_units"); !contains(ValidPixelSizeUnits, units) {
			return invalidChoice("pixel_size_units", units, ValidPixelSizeUnits)
		}
	} else {
		o["pixel_size"] = nil
		o["pixel_size_units"] = nil
	}

	if (o.Bool("reproject") || o.Bool("image_extents")) && !o.Bool("resize") {
		units := "meters"
		if o.Bool("reproject") && o.String("target_projection") == "lonlat" {
			units = "dd"
		}

		info, err := sensor.Lookup(productID)
		if err != nil {
			return err
		}
		size, _ := info.DefaultPixelSize.For(units)
		o["pixel_size"] = size
		o["pixel_size_units"] = units

		logger.Warn(fmt.Sprintf("resize: parameter not provided but required for reprojection or image extents"+
			" (Defaulting pixel_size(%v) and pixel_size_units(%s)", size, units))
	}

	return nil
}

func validateTargetProjection(o Options) error {
	if !o.Has("target_projection") {
		return missing("target_projection")
	}
	projection := strings.ToLower(o.String("target_projection"))
	o["target_projection"] = projection

	if !contains(ValidProjections, projection) {
		return fmt.Errorf("Invalid target_projection [%s]: Argument must be one of (%s)",
			projection, strings.Join(ValidProjections, ", "))
	}

	switch projection {
	case "sinu":
		if err := o.requireFloats("central_meridian", "false_easting", "false_northing"); err != nil {
			return err
		}
		o.SetDefault("datum", nil)

	case "aea":
		if err := o.requireFloats("std_parallel_1", "std_parallel_2", "origin_lat",
			"central_meridian", "false_easting", "false_northing"); err != nil {
			return err
		}
		// The processing code only understands upper case datums
		if !o.Has("datum") {
			return missing("datum")
		}
		datum := strings.ToUpper(o.String("datum"))
		o["datum"] = datum
		if !contains(ValidDatums, datum) {
			return invalidChoice("datum", datum, ValidDatums)
		}

	case "utm":
		if !o.Has("utm_zone") {
			return missing("utm_zone")
		}
		zone, err := utmZone(o["utm_zone"])
		if err != nil {
			return errors.Wrap(err, "parameter utm_zone")
		}
		if zone < 0 || zone > 60 {
			return fmt.Errorf("Invalid utm_zone [%d]: Value must be 0-60", zone)
		}
		o["utm_zone"] = zone
		if !o.Has("utm_north_south") {
			return missing("utm_north_south")
		}
		if ns := o.String("utm_north_south"); !contains(ValidNS, ns) {
			return invalidChoice("utm_north_south", ns, ValidNS)
		}
		o.SetDefault("datum", nil)

	case "ps":
		// latitude_true_scale must be checked before origin_lat
		if err := o.requireFloats("latitude_true_scale"); err != nil {
			return err
		}
		latTS := o["latitude_true_scale"].(float64)
		if (latTS < 60.0 && latTS > -60.0) || latTS > 90.0 || latTS < -90.0 {
			return fmt.Errorf("Invalid latitude_true_scale [%v]: Value must be between (-60.0 and -90.0) or (60.0 and 90.0)", latTS)
		}
		if err := o.requireFloats("longitude_pole"); err != nil {
			return err
		}
		if !o.Has("origin_lat") {
			if latTS < 0 {
				o["origin_lat"] = -90.0
			} else {
				o["origin_lat"] = 90.0
			}
		} else {
			originLat, err := o.Float("origin_lat")
			if err != nil {
				return err
			}
			if originLat != -90.0 && originLat != 90.0 {
				return fmt.Errorf("Invalid origin_lat [%v]: Value must be -90.0 or 90.0", originLat)
			}
			o["origin_lat"] = originLat
		}
		if err := o.requireFloats("false_easting", "false_northing"); err != nil {
			return err
		}
		o.SetDefault("datum", nil)

	case "lonlat":
		o.SetDefault("datum", nil)
	}
	return nil
}
