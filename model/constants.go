package model

// Product status values understood by the production API
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Product types the scheduler asks the production API for
const (
	ProductTypeLandsat = "landsat"
	ProductTypeModis   = "modis"
	ProductTypeViirs   = "viirs"
	ProductTypePlot    = "plot"
)

// ProductTypes is the order in which the scheduler polls for work.
var ProductTypes = []string{ProductTypeLandsat, ProductTypeModis, ProductTypeViirs, ProductTypePlot}

// PlotProductID is the scene name the production API uses for plot requests
const PlotProductID = "plot"

// ErrorLocation is reported for the product and checksum files when processing did not finish
const ErrorLocation = "ERROR"
