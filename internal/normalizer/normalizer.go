// Package normalizer canonicalizes product page URLs so the same page configured twice is checked once.
package normalizer

import (
	"errors"
	"net/url"
	"strings"

	"github.com/aleister1102/marketplace-monitor/internal/common"
)

// ErrEmptyURL is returned for blank input
var ErrEmptyURL = errors.New("input URL is empty")

// NormalizeURL lowercases scheme and host, drops the fragment and default ports.
// A URL without a scheme is treated as https.
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", ErrEmptyURL
	}

	// url.Parse("shop.example/p") puts the host into Path
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", common.WrapErrorf(err, "failed to parse URL '%s'", rawURL)
	}
	if parsed.Host == "" {
		return "", common.NewValidationError("url", rawURL, "missing host")
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	port := parsed.Port()
	if (parsed.Scheme == "https" && port == "443") || (parsed.Scheme == "http" && port == "80") {
		parsed.Host = parsed.Hostname()
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}

	return parsed.String(), nil
}

// DedupeURLs keeps the first occurrence of every URL by its normalized form.
// Entries that cannot be normalized are kept as written and compared verbatim.
// The returned slice preserves input order and holds the URLs as written.
func DedupeURLs(urls []string) (kept []string, dropped []string) {
	seen := make(map[string]bool, len(urls))
	for _, raw := range urls {
		key, err := NormalizeURL(raw)
		if err != nil {
			key = raw
		}
		if seen[key] {
			dropped = append(dropped, raw)
			continue
		}
		seen[key] = true
		kept = append(kept, raw)
	}
	return kept, dropped
}
