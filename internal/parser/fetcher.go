package parser

import (
	"context"
	"errors"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/httpclient"
)

// Page is a fetched product page
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves product pages. Failures are returned as *TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts RequestOptions) (*Page, error)
}

// HTTPFetcher fetches pages through the shared HTTP client
type HTTPFetcher struct {
	client *httpclient.HTTPClient
}

// NewHTTPFetcher creates a fetcher backed by client
func NewHTTPFetcher(client *httpclient.HTTPClient) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch performs a GET honoring the per-site timeout, headers, cookies and user agent
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts RequestOptions) (*Page, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := f.client.Get(ctx, httpclient.HTTPRequest{
		URL:       url,
		UserAgent: opts.UserAgent,
		Headers:   opts.Headers,
		Cookies:   opts.Cookies,
	})
	if err != nil {
		status := 0
		var httpErr *common.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.StatusCode
		}
		return nil, NewTransportError(url, status, err)
	}
	// A partial page could hide sizes listed past the cut
	if resp.Truncated {
		return nil, NewTransportError(url, resp.StatusCode, ErrPageTruncated)
	}

	finalURL := resp.FinalURL
	if finalURL == "" {
		finalURL = url
	}
	return &Page{URL: finalURL, StatusCode: resp.StatusCode, Body: resp.Body}, nil
}
