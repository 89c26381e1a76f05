package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

// HTTPClient fetches storefront pages with browser-like default headers,
// a body size cap and optional retries on throttling.
type HTTPClient struct {
	client       *http.Client
	config       HTTPClientConfig
	logger       zerolog.Logger
	retryHandler *RetryHandler
}

func NewHTTPClient(config HTTPClientConfig, logger zerolog.Logger) (*HTTPClient, error) {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn().Err(err).Msg("Failed to configure HTTP/2, falling back to HTTP/1.1")
		}
	}

	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, common.WrapError(err, "failed to parse proxy URL")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		logger.Info().Str("proxy", config.Proxy).Msg("HTTP client configured with proxy")
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}

	if !config.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if config.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}
			return nil
		}
	}

	logger.Debug().
		Dur("timeout", config.Timeout).
		Bool("follow_redirects", config.FollowRedirects).
		Bool("http2_enabled", config.EnableHTTP2).
		Msg("HTTP client created")

	return &HTTPClient{
		client: client,
		config: config,
		logger: logger.With().Str("component", "HTTPClient").Logger(),
	}, nil
}

func (c *HTTPClient) Config() HTTPClientConfig {
	return c.config
}

// Do sends req and returns the response whatever its status
func (c *HTTPClient) Do(req *HTTPRequest) (*HTTPResponse, error) {
	if c.retryHandler != nil {
		ctx := req.Context
		if ctx == nil {
			ctx = context.Background()
		}
		return c.retryHandler.DoWithRetry(ctx, c.do, req)
	}
	return c.do(req)
}

// Get returns a *common.HTTPError alongside the response for any non-2xx status
func (c *HTTPClient) Get(ctx context.Context, req HTTPRequest) (*HTTPResponse, error) {
	req.Method = http.MethodGet
	req.Context = ctx

	resp, err := c.Do(&req)
	if err != nil {
		return resp, err
	}
	if !resp.IsSuccess() {
		return resp, common.NewHTTPErrorWithURL(resp.StatusCode, http.StatusText(resp.StatusCode), req.URL)
	}
	return resp, nil
}

func (c *HTTPClient) do(req *HTTPRequest) (*HTTPResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, req.Body)
	if err != nil {
		return nil, common.WrapError(err, "failed to create HTTP request")
	}

	c.applyHeaders(httpReq, req)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, common.WrapError(err, "HTTP request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, truncated, err := c.readBody(resp.Body)
	if err != nil {
		return nil, common.WrapError(err, "failed to read response body")
	}
	if truncated {
		c.logger.Warn().Str("url", req.URL).Int("limit", c.config.MaxContentSize).Msg("Response body truncated")
	}

	httpResp := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
		Body:       body,
		Truncated:  truncated,
		FinalURL:   resp.Request.URL.String(),
	}
	for key, values := range resp.Header {
		if len(values) > 0 {
			httpResp.Headers[key] = values[0]
		}
	}

	return httpResp, nil
}

// readBody reads at most MaxContentSize bytes and reports whether more were available
func (c *HTTPClient) readBody(r io.Reader) ([]byte, bool, error) {
	limit := int64(c.config.MaxContentSize)
	if limit <= 0 {
		body, err := io.ReadAll(r)
		return body, false, err
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// applyHeaders layers client defaults, request headers, user agent and cookies
func (c *HTTPClient) applyHeaders(httpReq *http.Request, req *HTTPRequest) {
	for key, value := range c.config.CustomHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.config.UserAgent
	}
	if userAgent != "" {
		httpReq.Header.Set("User-Agent", userAgent)
	}

	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "*/*")
	}

	// Sorted for a stable Cookie header
	names := make([]string, 0, len(req.Cookies))
	for name := range req.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: req.Cookies[name]})
	}
}
