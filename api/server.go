package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/djzelenak/espa-worker/util"
)

// Server is a client of the production API. It also serves as the log
// context for every call made through it.
type Server struct {
	BaseURL   string
	sessionID string
}

// NewServer returns a client for the API rooted at baseURL
func NewServer(baseURL string) *Server {
	return &Server{BaseURL: baseURL}
}

// Connect returns a client once the base URL answers with a 200
func Connect(ctx context.Context, baseURL string) (*Server, error) {
	server := NewServer(baseURL)
	ok, err := server.TestConnection(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &APIError{URL: baseURL, Message: fmt.Sprintf("Failed connecting to API %s", baseURL)}
	}
	return server, nil
}

// AppName returns the application name
func (s *Server) AppName() string {
	return "espa-worker"
}

// SessionID returns a Session ID, creating one if needed
func (s *Server) SessionID() string {
	if s.sessionID == "" {
		s.sessionID, _ = util.PsuUUID()
	}
	return s.sessionID
}

// LogRootDir returns an empty string
func (s *Server) LogRootDir() string {
	return ""
}

func (s *Server) resourceURL(resource string) string {
	switch {
	case resource == "":
		return s.BaseURL
	case strings.HasPrefix(resource, "/"):
		return s.BaseURL + resource
	}
	return s.BaseURL + "/" + resource
}

// APIError is returned when the production API can not be reached or
// refuses a request. The worker halts on it without reporting a product error.
type APIError struct {
	URL     string
	Message string
}

func (err *APIError) Error() string {
	return err.Message
}

// IsAPIError reports whether err is, or wraps, an *APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
