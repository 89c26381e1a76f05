package models

import (
	"sort"
	"time"
)

// AvailabilitySnapshot is the result of checking one product URL at one point in time.
// Sizes is keyed by normalized size and is always empty when Success is false.
type AvailabilitySnapshot struct {
	URL       string          `json:"url"`
	Timestamp time.Time       `json:"timestamp"`
	Success   bool            `json:"success"`
	Sizes     map[string]bool `json:"sizes"`
	Error     string          `json:"error,omitempty"`
	Product   ProductInfo     `json:"product,omitempty"`
}

// NewSnapshot creates a successful snapshot
func NewSnapshot(url string, ts time.Time, sizes map[string]bool) AvailabilitySnapshot {
	if sizes == nil {
		sizes = make(map[string]bool)
	}
	return AvailabilitySnapshot{
		URL:       url,
		Timestamp: ts,
		Success:   true,
		Sizes:     sizes,
	}
}

// NewFailedSnapshot creates a failed snapshot carrying a diagnostic message
func NewFailedSnapshot(url string, ts time.Time, reason string) AvailabilitySnapshot {
	return AvailabilitySnapshot{
		URL:       url,
		Timestamp: ts,
		Success:   false,
		Sizes:     map[string]bool{},
		Error:     reason,
	}
}

// Sanitize enforces the snapshot invariants on values produced by third-party parsers
func (s AvailabilitySnapshot) Sanitize() AvailabilitySnapshot {
	if !s.Success {
		s.Sizes = map[string]bool{}
		if s.Error == "" {
			s.Error = "parse failed without diagnostic"
		}
		return s
	}
	if s.Sizes == nil {
		s.Sizes = map[string]bool{}
	}
	return s
}

// IsAvailable reports whether the normalized size is in stock
func (s AvailabilitySnapshot) IsAvailable(normalizedSize string) bool {
	return s.Success && s.Sizes[normalizedSize]
}

// AvailableSizes returns the in-stock normalized sizes in sorted order
func (s AvailabilitySnapshot) AvailableSizes() []string {
	var sizes []string
	for size, ok := range s.Sizes {
		if ok {
			sizes = append(sizes, size)
		}
	}
	sort.Strings(sizes)
	return sizes
}
