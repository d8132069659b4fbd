package model

// Delivery describes where a finished product was placed. The locations are
// the ones reported back to the production API.
type Delivery struct {
	ProductFile string `json:"completed_file_location"`
	CksumFile   string `json:"cksum_file_location"`
	CksumValue  string `json:"-"`
}

// FailedDelivery is reported when a product never reached its destination.
var FailedDelivery = Delivery{ProductFile: ErrorLocation, CksumFile: ErrorLocation}
