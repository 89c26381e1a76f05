package parser

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/httpclient"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
)

// CollyFetcherConfig configures the colly backed fetcher
type CollyFetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
	Proxy     string
	// MaxBodySize defaults to httpclient.DefaultMaxContentSize
	MaxBodySize int
}

// CollyFetcher fetches pages through a colly collector. Each Fetch runs on a clone so
// per-site headers and callbacks stay with their own request.
type CollyFetcher struct {
	base        *colly.Collector
	maxBodySize int
	logger      zerolog.Logger
}

// NewCollyFetcher creates the base collector
func NewCollyFetcher(cfg CollyFetcherConfig, logger zerolog.Logger) (*CollyFetcher, error) {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = httpclient.DefaultMaxContentSize
	}

	// One byte past the limit tells a truncated body apart from one that fits exactly
	options := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(maxBodySize + 1),
	}
	if cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(cfg.UserAgent))
	}

	collector := colly.NewCollector(options...)
	if cfg.Timeout > 0 {
		collector.SetRequestTimeout(cfg.Timeout)
	}
	if cfg.Proxy != "" {
		if err := collector.SetProxy(cfg.Proxy); err != nil {
			return nil, common.WrapError(err, "failed to configure colly proxy")
		}
	}

	return &CollyFetcher{
		base:        collector,
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("component", "CollyFetcher").Logger(),
	}, nil
}

// Fetch visits url synchronously and returns the response body
func (f *CollyFetcher) Fetch(ctx context.Context, url string, opts RequestOptions) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransportError(url, 0, err)
	}

	// Clones share the base HTTP backend, so the request timeout is fixed at construction
	c := f.base.Clone()

	var (
		page     *Page
		fetchErr error
		status   int
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		for key, value := range opts.Headers {
			r.Headers.Set(key, value)
		}
		if opts.UserAgent != "" {
			r.Headers.Set("User-Agent", opts.UserAgent)
		}
		if cookie := cookieHeader(opts.Cookies); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
		}
		f.logger.Debug().Err(err).Str("url", url).Int("status_code", status).Msg("Colly fetch failed")
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, NewTransportError(url, 0, ctxErr)
	}
	if fetchErr != nil {
		return nil, NewTransportError(url, status, fetchErr)
	}
	if page == nil {
		return nil, NewTransportError(url, 0, errors.New("no response received"))
	}
	if len(page.Body) > f.maxBodySize {
		return nil, NewTransportError(url, page.StatusCode, ErrPageTruncated)
	}
	return page, nil
}

func cookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}
