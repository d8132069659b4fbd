package model

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/djzelenak/espa-worker/parameters"
)

// ProductRequest is a single unit of work handed out by the production API.
// The API's "scene" value is what the worker uses as the product ID.
type ProductRequest struct {
	OrderID     string             `json:"orderid"`
	Scene       string             `json:"scene"`
	ProductType string             `json:"product_type"`
	ProductID   string             `json:"product_id,omitempty"`
	DownloadURL string             `json:"download_url,omitempty"`
	BridgeMode  bool               `json:"bridge_mode,omitempty"`
	Priority    interface{}        `json:"priority,omitempty"`
	Options     parameters.Options `json:"options"`
}

// ParseProductRequests decodes API output holding either a single request
// object or an array of them.
func ParseProductRequests(data []byte) ([]ProductRequest, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("Product request data is not valid JSON")
	}
	parsed := gjson.ParseBytes(data)
	switch {
	case parsed.IsArray():
		requests := []ProductRequest{}
		if err := json.Unmarshal(data, &requests); err != nil {
			return nil, errors.Wrap(err, "Failed to decode product requests")
		}
		return requests, nil
	case parsed.IsObject():
		var request ProductRequest
		if err := json.Unmarshal(data, &request); err != nil {
			return nil, errors.Wrap(err, "Failed to decode product request")
		}
		return []ProductRequest{request}, nil
	}
	return nil, errors.Errorf("Product request data must be an object or an array, got %s", parsed.Type)
}

// Validate checks the required fields and applies the request level defaults.
// Single quotes are removed from the order ID since it ends up on command lines.
func (r *ProductRequest) Validate() error {
	required := []struct {
		key   string
		value bool
	}{
		{"orderid", r.OrderID != ""},
		{"scene", r.Scene != ""},
		{"product_type", r.ProductType != ""},
		{"options", r.Options != nil},
	}
	for _, field := range required {
		if !field.value {
			return errors.Errorf("Missing required input parameter [%s]", field.key)
		}
	}

	r.OrderID = strings.Replace(r.OrderID, "'", "", -1)
	if r.ProductID == "" {
		r.ProductID = r.Scene
	}
	return nil
}

// IsPlot reports whether this is a statistics plotting request.
func (r ProductRequest) IsPlot() bool {
	return r.Scene == PlotProductID || r.ProductType == ProductTypePlot
}

// Masked returns a copy suitable for logging, with the transfer credentials hidden.
func (r ProductRequest) Masked() ProductRequest {
	r.Options = r.Options.Masked()
	return r
}

// String renders the masked request as JSON.
func (r ProductRequest) String() string {
	data, err := json.Marshal(r.Masked())
	if err != nil {
		return r.OrderID + ":" + r.ProductID
	}
	return string(data)
}
