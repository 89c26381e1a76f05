package httpclient

import (
	"context"
	"io"
)

// HTTPRequest represents an outgoing request. UserAgent, Headers and Cookies override the client defaults.
type HTTPRequest struct {
	URL       string
	Method    string
	UserAgent string
	Headers   map[string]string
	Cookies   map[string]string
	Body      io.Reader
	Context   context.Context
}

// HTTPResponse represents a fully read response
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	// Truncated is set when the body hit MaxContentSize
	Truncated bool
	// FinalURL is the URL after redirects
	FinalURL string
}

// IsSuccess reports a 2xx status
func (r *HTTPResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
