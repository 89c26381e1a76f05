package config

import "time"

// SiteConfig describes one marketplace and the product pages watched on it
type SiteConfig struct {
	Name          string            `json:"name" yaml:"name" validate:"required"`
	Parser        string            `json:"parser,omitempty" yaml:"parser,omitempty"`
	URLs          []string          `json:"urls" yaml:"urls" validate:"required,min=1,dive,url"`
	Sizes         []string          `json:"sizes" yaml:"sizes" validate:"required,min=1,dive,required"`
	CheckInterval int               `json:"check_interval,omitempty" yaml:"check_interval,omitempty" validate:"omitempty,min=60"`
	Enabled       *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Cookies       map[string]string `json:"cookies,omitempty" yaml:"cookies,omitempty"`
}

// IsEnabled treats a missing enabled flag as true
func (s SiteConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Interval returns the nominal check interval, falling back to the global interval in seconds
func (s SiteConfig) Interval(globalSeconds int) time.Duration {
	seconds := s.CheckInterval
	if seconds == 0 {
		seconds = globalSeconds
	}
	if seconds < MinCheckInterval {
		seconds = MinCheckInterval
	}
	return time.Duration(seconds) * time.Second
}

// Bool returns a pointer to b, for building SiteConfig values in code
func Bool(b bool) *bool {
	return &b
}
