package processor

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/djzelenak/espa-worker/parameters"
)

// customization warps products to the requested projection, extents and
// pixel size.
type customization struct {
	*base
	buildProducts bool
	xmlName       string
}

func newCustomization(b *base) (*customization, error) {
	c := &customization{base: b}
	c.logger.Info("Validating [CustomizationProcessor] parameters")
	if err := parameters.ValidateReprojection(c.options, c.req.ProductID, c.logger); err != nil {
		return nil, err
	}
	c.xmlName = c.req.ProductID + ".xml"
	return c, nil
}

// argument renders an option value the way the reprojection tool expects.
// Whole floats keep their ".0".
func argument(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e16 {
			return strconv.FormatFloat(v, 'f', 1, 64)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "True"
		}
		return "False"
	}
	return cast.ToString(value)
}

// ReprojectionArgs builds the espa_reprojection.py arguments for the
// options. The output is always ENVI, reformatting happens later.
func ReprojectionArgs(o parameters.Options, xmlName string) []string {
	args := []string{"--xml", xmlName}

	projection := o.String("target_projection")
	if !o.Bool("reproject") {
		args = append(args, "none")
	} else {
		args = append(args, projection)
	}

	flags := func(pairs ...string) {
		for i := 0; i < len(pairs); i += 2 {
			args = append(args, pairs[i], argument(o[pairs[i+1]]))
		}
	}
	switch projection {
	case "utm":
		flags("--zone", "utm_zone", "--north-south", "utm_north_south")
	case "aea":
		flags("--datum", "datum",
			"--central-meridian", "central_meridian",
			"--origin-latitude", "origin_lat",
			"--std-parallel-1", "std_parallel_1",
			"--std-parallel-2", "std_parallel_2",
			"--false-easting", "false_easting",
			"--false-northing", "false_northing")
	case "ps":
		flags("--latitude-true-scale", "latitude_true_scale",
			"--longitude-pole", "longitude_pole",
			"--origin-latitude", "origin_lat",
			"--false-easting", "false_easting",
			"--false-northing", "false_northing")
	case "sinu":
		flags("--central-meridian", "central_meridian",
			"--false-easting", "false_easting",
			"--false-northing", "false_northing")
	}

	method := o.String("resample_method")
	if method == "" {
		method = "near"
	}
	args = append(args, "--resample-method", method)

	if o.Bool("resize") || o.Bool("reproject") || o.Bool("image_extents") {
		flags("--pixel-size", "pixel_size", "--pixel-size-units", "pixel_size_units")
	}
	if o.Bool("image_extents") {
		flags("--extent-minx", "minx",
			"--extent-maxx", "maxx",
			"--extent-miny", "miny",
			"--extent-maxy", "maxy",
			"--extent-units", "image_extents_units")
	}

	return append(args, "--output-format", "envi")
}

func (c *customization) customizeProducts(ctx context.Context) error {
	if !c.buildProducts {
		return nil
	}
	o := c.options
	if !o.Bool("reproject") && !o.Bool("resize") && !o.Bool("image_extents") && o["projection"] == nil {
		return nil
	}

	if err := c.run(ctx, "REPROJECTION", "espa_reprojection.py", ReprojectionArgs(o, c.xmlName)...); err != nil {
		msg := "An exception occurred during product customization"
		c.logger.Error(fmt.Sprintf("%s: %v", msg, err))
		return errors.Wrap(err, msg)
	}
	return nil
}
