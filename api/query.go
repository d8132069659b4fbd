package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/util"
)

var httpRequestKnownJSONWithObject = util.ReqByObjJSON

// request calls the API and returns the raw response body. Transport failures
// are *APIError. A non-zero expect turns any other status into a plain error.
func (s *Server) request(ctx context.Context, method, resource string, expect int, input interface{}) ([]byte, int, error) {
	target := s.resourceURL(resource)

	util.LogAudit(s, util.LogAuditInput{
		Actor: "espa-worker", Action: method, Actee: target, Message: "Calling production API", Severity: util.DEBUG,
	})
	var body []byte
	status, err := httpRequestKnownJSONWithObject(ctx, method, target, "", input, &body)
	if err != nil {
		return nil, status, &APIError{URL: target, Message: err.Error()}
	}
	util.LogAudit(s, util.LogAuditInput{
		Actor: target, Action: method + " response", Actee: "espa-worker",
		Message: fmt.Sprintf("Production API answered %d", status), Severity: util.DEBUG,
	})

	if expect != 0 && status != expect {
		return body, status, errors.Errorf("Received unexpected status code: %d for URL: %s", status, target)
	}
	return body, status, nil
}

// post sends data and reports the truthiness of the JSON answer
func (s *Server) post(ctx context.Context, resource string, data interface{}) (bool, error) {
	body, _, err := s.request(ctx, http.MethodPost, resource, http.StatusOK, data)
	if err != nil {
		return false, err
	}
	return truthy(gjson.ParseBytes(body)), nil
}

// truthy follows the usual JSON truthiness: empty strings, zero, null, false
// and empty containers are false.
func truthy(result gjson.Result) bool {
	switch result.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return result.Num != 0
	case gjson.String:
		return result.Str != ""
	case gjson.JSON:
		found := false
		result.ForEach(func(_, _ gjson.Result) bool {
			found = true
			return false
		})
		return found
	}
	return false
}

// TestConnection reports whether the base URL answers with a 200
func (s *Server) TestConnection(ctx context.Context) (bool, error) {
	_, status, err := s.request(ctx, http.MethodGet, "", 0, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// GetConfiguration returns the value stored under key. The boolean is false
// when the API does not know the key.
func (s *Server) GetConfiguration(ctx context.Context, key string) (string, bool, error) {
	body, _, err := s.request(ctx, http.MethodGet, "/configuration/"+url.PathEscape(key), http.StatusOK, nil)
	if err != nil {
		return "", false, err
	}

	var value gjson.Result
	gjson.ParseBytes(body).ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			value = v
			return false
		}
		return true
	})
	return value.String(), value.Exists(), nil
}

// ProductQuery selects the products handed out by GetProductsToProcess.
// Empty fields are left out of the query.
type ProductQuery struct {
	Limit        int
	User         string
	Priority     string
	ProductTypes []string
}

func (q ProductQuery) encode() string {
	var params []string
	if q.Limit > 0 {
		params = append(params, fmt.Sprintf("record_limit=%d", q.Limit))
	}
	if q.User != "" {
		params = append(params, "for_user="+url.QueryEscape(q.User))
	}
	if q.Priority != "" {
		params = append(params, "priority="+url.QueryEscape(q.Priority))
	}
	if len(q.ProductTypes) > 0 {
		params = append(params, "product_types="+url.QueryEscape(strings.Join(q.ProductTypes, ",")))
	}
	return strings.Join(params, "&")
}

// GetProductsToProcess asks the API for work
func (s *Server) GetProductsToProcess(ctx context.Context, query ProductQuery) ([]model.ProductRequest, error) {
	body, _, err := s.request(ctx, http.MethodGet, "/products?"+query.encode(), http.StatusOK, nil)
	if err != nil {
		return nil, err
	}
	return model.ParseProductRequests(body)
}

// UpdateStatus sets the status of a product
func (s *Server) UpdateStatus(ctx context.Context, productID, orderID, processingLocation, status string) (bool, error) {
	return s.post(ctx, "/update_status", map[string]string{
		"name":           productID,
		"orderid":        orderID,
		"processing_loc": processingLocation,
		"status":         status,
	})
}

// MarkProductComplete records the delivered product and checksum locations
func (s *Server) MarkProductComplete(ctx context.Context, productID, orderID, processingLocation string, delivery model.Delivery, logContents string) (bool, error) {
	return s.post(ctx, "/mark_product_complete", map[string]string{
		"name":                    productID,
		"orderid":                 orderID,
		"processing_loc":          processingLocation,
		"completed_file_location": delivery.ProductFile,
		"cksum_file_location":     delivery.CksumFile,
		"log_file_contents":       logContents,
	})
}

// SetProductError puts a product into the error state, with the job log as the reason
func (s *Server) SetProductError(ctx context.Context, productID, orderID, processingLocation, errorText string) (bool, error) {
	return s.post(ctx, "/set_product_error", map[string]string{
		"name":           productID,
		"orderid":        orderID,
		"processing_loc": processingLocation,
		"error":          errorText,
	})
}

// OrderProduct names one product of an order, as used by QueueProducts
type OrderProduct struct {
	OrderID   string
	ProductID string
}

// QueueProducts moves products to the queued state under the given job name
func (s *Server) QueueProducts(ctx context.Context, products []OrderProduct, processingLocation, jobName string) (bool, error) {
	tuples := make([][2]string, len(products))
	for i, product := range products {
		tuples[i] = [2]string{product.OrderID, product.ProductID}
	}
	return s.post(ctx, "/queue-products", map[string]interface{}{
		"order_name_tuple_list": tuples,
		"processing_location":   processingLocation,
		"job_name":              jobName,
	})
}

// HandleOrders asks the API to run its order disposition
func (s *Server) HandleOrders(ctx context.Context) (bool, error) {
	_, status, err := s.request(ctx, http.MethodGet, "/handle-orders", http.StatusOK, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}
