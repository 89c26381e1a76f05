// Package parser turns storefront product pages into availability snapshots.
package parser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/rs/zerolog"
)

// RequestOptions carries the per-site request settings
type RequestOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Cookies   map[string]string
}

// Parser extracts size availability from one product page.
//
// Parse returns an error only for transport failures, always wrapping *TransportError.
// A page whose layout is not recognized yields a snapshot with Success=false.
type Parser interface {
	ID() string
	CanHandle(site config.SiteConfig) bool
	Parse(ctx context.Context, url string, targetSizes []string, opts RequestOptions) (models.AvailabilitySnapshot, error)
}

// SizeNormalizer is implemented by parsers whose size notation needs more than NormalizeSize
type SizeNormalizer interface {
	NormalizeSize(size string) string
}

// NormalizerFor returns the size normalization p applies to target sizes
func NormalizerFor(p Parser) func(string) string {
	if n, ok := p.(SizeNormalizer); ok {
		return n.NormalizeSize
	}
	return NormalizeSize
}

// Deps are the shared collaborators handed to every parser factory
type Deps struct {
	Fetcher Fetcher
	Logger  zerolog.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Factory builds a parser from the shared dependencies
type Factory func(deps Deps) Parser

// hostMatches reports whether every URL of the site belongs to one of domains
func hostMatches(site config.SiteConfig, domains ...string) bool {
	if len(site.URLs) == 0 {
		return false
	}
	for _, raw := range site.URLs {
		if !urlMatches(raw, domains...) {
			return false
		}
	}
	return true
}

func urlMatches(raw string, domains ...string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, domain := range domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
