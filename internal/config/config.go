package config

import (
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/logger"
)

// Default global settings
const (
	DefaultGlobalCheckInterval = 300
	DefaultMaxConcurrentChecks = 5
	DefaultTimeoutSeconds      = 30
	DefaultRetryAttempts       = 3
	DefaultLogLevel            = "INFO"
	DefaultUserAgent           = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MinCheckInterval is the lowest interval in seconds accepted for a site
	MinCheckInterval = 60
)

// AppConfig is the root of the configuration file
type AppConfig struct {
	Sites               []SiteConfig         `json:"sites" yaml:"sites" validate:"required,min=1"`
	Notifications       NotificationConfig   `json:"notifications" yaml:"notifications"`
	GlobalCheckInterval int                  `json:"global_check_interval" yaml:"global_check_interval" validate:"min=60"`
	MaxConcurrentChecks int                  `json:"max_concurrent_checks" yaml:"max_concurrent_checks" validate:"min=1"`
	UserAgent           string               `json:"user_agent" yaml:"user_agent" validate:"required"`
	Timeout             int                  `json:"timeout" yaml:"timeout" validate:"min=1"`
	RetryAttempts       int                  `json:"retry_attempts" yaml:"retry_attempts" validate:"min=0,max=10"`
	LogLevel            string               `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,loglevel"`
	Log                 logger.FileLogConfig `json:"log,omitempty" yaml:"log,omitempty"`
	Engine              EngineConfig         `json:"engine,omitempty" yaml:"engine,omitempty"`
	Storage             StorageConfig        `json:"storage,omitempty" yaml:"storage,omitempty"`
	Redis               RedisConfig          `json:"redis,omitempty" yaml:"redis,omitempty"`
	Server              ServerConfig         `json:"server,omitempty" yaml:"server,omitempty"`
	Resource            ResourceConfig       `json:"resource,omitempty" yaml:"resource,omitempty"`

	// SourcePath is the file the configuration was loaded from
	SourcePath string `json:"-" yaml:"-"`
}

// NewDefaultAppConfig creates a configuration with every default applied and no sites
func NewDefaultAppConfig() *AppConfig {
	return &AppConfig{
		Sites:               []SiteConfig{},
		Notifications:       NewDefaultNotificationConfig(),
		GlobalCheckInterval: DefaultGlobalCheckInterval,
		MaxConcurrentChecks: DefaultMaxConcurrentChecks,
		UserAgent:           DefaultUserAgent,
		Timeout:             DefaultTimeoutSeconds,
		RetryAttempts:       DefaultRetryAttempts,
		LogLevel:            DefaultLogLevel,
		Log:                 logger.NewDefaultFileLogConfig(),
		Engine:              NewDefaultEngineConfig(),
		Storage:             NewDefaultStorageConfig(),
		Redis:               NewDefaultRedisConfig(),
		Server:              NewDefaultServerConfig(),
		Resource:            NewDefaultResourceConfig(),
	}
}

// TimeoutDuration returns the request timeout
func (c *AppConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// EffectiveLogConfig merges the top-level log_level into the log section
func (c *AppConfig) EffectiveLogConfig() logger.FileLogConfig {
	logCfg := c.Log
	if c.LogLevel != "" {
		logCfg.LogLevel = c.LogLevel
	}
	return logCfg
}

// EnabledSites returns the sites that are switched on, in file order
func (c *AppConfig) EnabledSites() []SiteConfig {
	var sites []SiteConfig
	for _, site := range c.Sites {
		if site.IsEnabled() {
			sites = append(sites, site)
		}
	}
	return sites
}

// FindSite looks up a site by name
func (c *AppConfig) FindSite(name string) (SiteConfig, bool) {
	for _, site := range c.Sites {
		if site.Name == name {
			return site, true
		}
	}
	return SiteConfig{}, false
}
