package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockRequestJSON = `{
	"orderid": "bob@example.com-0101'1",
	"scene": "LC08_L1TP_012029_20170213_20170415_01_T1",
	"product_type": "landsat",
	"download_url": "file:///tmp/LC08_L1TP_012029_20170213_20170415_01_T1.tar.gz",
	"priority": "high",
	"options": {"include_sr": true, "output_format": "gtiff", "source_pw": "hunter2"}
}`

func TestParseProductRequests_Object(t *testing.T) {
	// Tested code
	requests, err := ParseProductRequests([]byte(mockRequestJSON))

	// Asserts
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "landsat", requests[0].ProductType)
	assert.Equal(t, true, requests[0].Options["include_sr"])
	assert.Equal(t, "high", requests[0].Priority)
}

func TestParseProductRequests_Array(t *testing.T) {
	requests, err := ParseProductRequests([]byte("[" + mockRequestJSON + "," + mockRequestJSON + "]"))
	require.NoError(t, err)
	assert.Len(t, requests, 2)

	requests, err = ParseProductRequests([]byte("[]"))
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestParseProductRequests_Invalid(t *testing.T) {
	_, err := ParseProductRequests([]byte("{not json"))
	assert.Error(t, err)

	_, err = ParseProductRequests([]byte(`"a string"`))
	assert.Error(t, err)
}

func TestProductRequest_Validate(t *testing.T) {
	requests, err := ParseProductRequests([]byte(mockRequestJSON))
	require.NoError(t, err)
	request := requests[0]

	// Tested code
	err = request.Validate()

	// Asserts
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com-01011", request.OrderID)
	assert.Equal(t, request.Scene, request.ProductID)
}

func TestProductRequest_ValidateMissing(t *testing.T) {
	request := ProductRequest{OrderID: "o", Scene: "s", ProductType: "landsat"}
	assert.EqualError(t, request.Validate(), "Missing required input parameter [options]")

	request = ProductRequest{OrderID: "o", ProductType: "landsat", Options: map[string]interface{}{}}
	assert.EqualError(t, request.Validate(), "Missing required input parameter [scene]")
}

func TestProductRequest_MaskedString(t *testing.T) {
	requests, err := ParseProductRequests([]byte(mockRequestJSON))
	require.NoError(t, err)

	str := requests[0].String()
	assert.NotContains(t, str, "hunter2")
	assert.Contains(t, str, `"source_pw":"XXXXXXX"`)
	assert.Equal(t, "hunter2", requests[0].Options["source_pw"])
}

func TestProductRequest_IsPlot(t *testing.T) {
	assert.True(t, ProductRequest{Scene: "plot"}.IsPlot())
	assert.True(t, ProductRequest{ProductType: "plot"}.IsPlot())
	assert.False(t, ProductRequest{Scene: "LC08", ProductType: "landsat"}.IsPlot())
}

func TestProductName(t *testing.T) {
	produced := time.Date(2019, 9, 10, 17, 27, 21, 0, time.UTC)
	assert.Equal(t, "LC080120292017021301T1-SC20190910172721", ProductName("LC080120292017021301T1", produced))
	assert.Equal(t, "bob@example.com-0101-statistics", StatisticsProductName("bob@example.com-0101"))
}
