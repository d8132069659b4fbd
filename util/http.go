package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is used by ReqByObjJSON
var HTTPClient = &http.Client{Timeout: 5 * time.Minute}

// HTTPErr is an error carrying an HTTP status
type HTTPErr struct {
	Status  int
	Message string
}

func (err HTTPErr) Error() string {
	return fmt.Sprintf("%d: %s", err.Status, err.Message)
}

// HTTPError logs the message and writes it back with the given status
func HTTPError(request *http.Request, writer http.ResponseWriter, ctx LogContext, message string, status int) {
	LogAudit(ctx, LogAuditInput{
		Actor:    request.URL.String(),
		Action:   request.Method + " response",
		Actee:    request.RemoteAddr,
		Message:  message,
		Severity: WARNING,
	})
	http.Error(writer, message, status)
}

// ReqByObjJSON marshals inpObj (if any) as the request body and unmarshals
// the response into outObj (if any). A *[]byte outObj receives the raw body.
// The HTTP status is returned whatever it is; only transport and decoding
// problems are errors.
func ReqByObjJSON(ctx context.Context, method, url, authKey string, inpObj, outObj interface{}) (int, error) {
	var body io.Reader
	if inpObj != nil {
		payload, err := json.Marshal(inpObj)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	request.Header.Set("Accept", "application/json")
	if inpObj != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authKey != "" {
		request.Header.Set("Authorization", authKey)
	}

	response, err := HTTPClient.Do(request)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return response.StatusCode, err
	}

	switch out := outObj.(type) {
	case nil:
	case *[]byte:
		*out = responseBody
	default:
		if len(responseBody) > 0 {
			if err = json.Unmarshal(responseBody, outObj); err != nil {
				return response.StatusCode, fmt.Errorf("Could not decode response from %s: %v", url, err)
			}
		}
	}
	return response.StatusCode, nil
}
