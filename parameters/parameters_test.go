package parameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const landsatID = "LC08_L1TP_012029_20170213_20170415_01_T1"

func TestTestForParameter(t *testing.T) {
	params := map[string]interface{}{"a": "value", "b": "", "c": nil, "d": false}

	assert.True(t, TestForParameter(params, "a"))
	assert.False(t, TestForParameter(params, "b"))
	assert.False(t, TestForParameter(params, "c"))
	assert.True(t, TestForParameter(params, "d"), "false is still a value")
	assert.False(t, TestForParameter(params, "missing"))
}

func TestOptionsBool(t *testing.T) {
	o := Options{"yes": true, "no": false, "str": "true", "strNo": "false", "zero": 0.0, "one": 1.0, "nil": nil}
	assert.True(t, o.Bool("yes"))
	assert.False(t, o.Bool("no"))
	assert.True(t, o.Bool("str"))
	assert.False(t, o.Bool("strNo"))
	assert.False(t, o.Bool("zero"))
	assert.True(t, o.Bool("one"))
	assert.False(t, o.Bool("nil"))
	assert.False(t, o.Bool("absent"))
}

func TestMasked(t *testing.T) {
	o := Options{"source_pw": "secret", "include_sr": true}
	masked := o.Masked()

	assert.Equal(t, "XXXXXXX", masked["source_pw"])
	assert.Equal(t, "XXXXXXX", masked["destination_username"])
	assert.Equal(t, true, masked["include_sr"])
	assert.Equal(t, "secret", o["source_pw"], "the original is untouched")
}

func TestValidateReprojection_Defaults(t *testing.T) {
	o := Options{}
	require.NoError(t, ValidateReprojection(o, landsatID, nil))

	assert.Equal(t, "near", o["resample_method"])
	assert.Equal(t, false, o["reproject"])
	assert.Equal(t, false, o["resize"])
	assert.Nil(t, o["pixel_size"])
	assert.Nil(t, o["minx"])
}

func TestValidateReprojection_UTM(t *testing.T) {
	o := Options{"reproject": true, "target_projection": "UTM", "utm_zone": "17", "utm_north_south": "north"}
	require.NoError(t, ValidateReprojection(o, landsatID, nil))

	assert.Equal(t, "utm", o["target_projection"])
	assert.Equal(t, 17, o["utm_zone"])
	assert.Equal(t, 30.0, o["pixel_size"])
	assert.Equal(t, "meters", o["pixel_size_units"])
	assert.Nil(t, o["datum"])

	o = Options{"reproject": true, "target_projection": "utm", "utm_zone": 61, "utm_north_south": "north"}
	assert.EqualError(t, ValidateReprojection(o, landsatID, nil), "Invalid utm_zone [61]: Value must be 0-60")

	o = Options{"reproject": true, "target_projection": "utm", "utm_zone": 12, "utm_north_south": "east"}
	assert.Error(t, ValidateReprojection(o, landsatID, nil))
}

func TestValidateReprojection_UTMZeroPaddedZone(t *testing.T) {
	for value, expected := range map[interface{}]int{"08": 8, "09": 9, " 010 ": 10, "12.0": 12, 17.0: 17} {
		o := Options{"reproject": true, "target_projection": "utm", "utm_zone": value, "utm_north_south": "south"}
		require.NoError(t, ValidateReprojection(o, landsatID, nil), "%v", value)
		assert.Equal(t, expected, o["utm_zone"], "%v", value)
	}

	o := Options{"reproject": true, "target_projection": "utm", "utm_zone": "12.5", "utm_north_south": "south"}
	assert.Error(t, ValidateReprojection(o, landsatID, nil))
}

func TestValidateReprojection_AEA(t *testing.T) {
	o := Options{
		"reproject": true, "target_projection": "aea",
		"std_parallel_1": 29.5, "std_parallel_2": "45.5", "origin_lat": 23.0,
		"central_meridian": -96.0, "false_easting": 0, "false_northing": 0,
		"datum": "nad83",
	}
	require.NoError(t, ValidateReprojection(o, landsatID, nil))
	assert.Equal(t, "NAD83", o["datum"])
	assert.Equal(t, 45.5, o["std_parallel_2"])

	delete(o, "datum")
	assert.EqualError(t, ValidateReprojection(o, landsatID, nil), "Missing datum parameter")

	o["datum"] = "mars"
	assert.EqualError(t, ValidateReprojection(o, landsatID, nil), "Invalid datum [MARS]: Argument must be one of [WGS84, NAD27, NAD83]")
}

func TestValidateReprojection_PolarStereographic(t *testing.T) {
	o := Options{"reproject": true, "target_projection": "ps", "latitude_true_scale": -71.0,
		"longitude_pole": 0.0, "false_easting": 0.0, "false_northing": 0.0}
	require.NoError(t, ValidateReprojection(o, landsatID, nil))
	assert.Equal(t, -90.0, o["origin_lat"])

	o = Options{"reproject": true, "target_projection": "ps", "latitude_true_scale": 45.0}
	assert.Error(t, ValidateReprojection(o, landsatID, nil))

	o = Options{"reproject": true, "target_projection": "ps", "latitude_true_scale": 70.0,
		"longitude_pole": 0.0, "origin_lat": 45.0, "false_easting": 0.0, "false_northing": 0.0}
	assert.EqualError(t, ValidateReprojection(o, landsatID, nil), "Invalid origin_lat [45]: Value must be -90.0 or 90.0")
}

func TestValidateReprojection_LonLatUsesDegrees(t *testing.T) {
	o := Options{"reproject": true, "target_projection": "lonlat"}
	require.NoError(t, ValidateReprojection(o, landsatID, nil))
	assert.Equal(t, 0.0002695, o["pixel_size"])
	assert.Equal(t, "dd", o["pixel_size_units"])
}

func TestValidateReprojection_Extents(t *testing.T) {
	o := Options{"image_extents": true, "image_extents_units": "meters", "minx": "1", "miny": 2, "maxx": 3.5, "maxy": 4}
	require.NoError(t, ValidateReprojection(o, landsatID, nil))
	assert.Equal(t, 1.0, o["minx"])
	assert.Equal(t, 4.0, o["maxy"])
	assert.Equal(t, 30.0, o["pixel_size"])

	o = Options{"image_extents": true, "image_extents_units": "meters", "minx": 1}
	assert.EqualError(t, ValidateReprojection(o, landsatID, nil), "Missing miny parameter")

	o = Options{"image_extents": true, "image_extents_units": "feet"}
	assert.Error(t, ValidateReprojection(o, landsatID, nil))
}

func TestValidateReprojection_Resize(t *testing.T) {
	o := Options{"resize": true, "pixel_size": "60", "pixel_size_units": "meters"}
	require.NoError(t, ValidateReprojection(o, landsatID, nil))
	assert.Equal(t, 60.0, o["pixel_size"])

	o = Options{"resize": true, "pixel_size": 60}
	assert.EqualError(t, ValidateReprojection(o, landsatID, nil), "Missing pixel_size_units parameter")
}

func TestValidateReprojection_BadChoices(t *testing.T) {
	o := Options{"resample_method": "nearest"}
	assert.Error(t, ValidateReprojection(o, landsatID, nil))

	o = Options{"reproject": true, "target_projection": "mercator"}
	assert.Error(t, ValidateReprojection(o, landsatID, nil))

	o = Options{"reproject": true}
	assert.EqualError(t, ValidateReprojection(o, landsatID, nil), "Missing target_projection parameter")
}
