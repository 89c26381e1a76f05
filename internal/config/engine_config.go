package config

import "time"

// Fetcher backends for product pages
const (
	FetcherHTTP  = "http"
	FetcherColly = "colly"
)

// EngineConfig tunes the scheduler and the page fetcher
type EngineConfig struct {
	TickSeconds             int    `json:"tick_seconds,omitempty" yaml:"tick_seconds,omitempty" validate:"min=1"`
	ShutdownGraceSeconds    int    `json:"shutdown_grace_seconds,omitempty" yaml:"shutdown_grace_seconds,omitempty" validate:"min=1"`
	RenotifyCooldownSeconds int    `json:"renotify_cooldown_seconds,omitempty" yaml:"renotify_cooldown_seconds,omitempty" validate:"min=0"`
	Fetcher                 string `json:"fetcher,omitempty" yaml:"fetcher,omitempty" validate:"fetcher"`
	EnableHTTP2             bool   `json:"enable_http2" yaml:"enable_http2"`
	Proxy                   string `json:"proxy,omitempty" yaml:"proxy,omitempty" validate:"omitempty,url"`
	InsecureSkipVerify      bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// NewDefaultEngineConfig creates default engine configuration
func NewDefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickSeconds:          1,
		ShutdownGraceSeconds: 30,
		Fetcher:              FetcherHTTP,
		EnableHTTP2:          true,
	}
}

// Tick returns the scheduling pass interval
func (e EngineConfig) Tick() time.Duration {
	return time.Duration(e.TickSeconds) * time.Second
}

// ShutdownGrace returns how long Stop waits for in-flight checks
func (e EngineConfig) ShutdownGrace() time.Duration {
	return time.Duration(e.ShutdownGraceSeconds) * time.Second
}

// RenotifyCooldown returns the minimum gap between notifications for one site and size
func (e EngineConfig) RenotifyCooldown() time.Duration {
	return time.Duration(e.RenotifyCooldownSeconds) * time.Second
}

// StorageConfig configures the SQLite check history
type StorageConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" validate:"required_if=Enabled true"`
}

// NewDefaultStorageConfig creates default storage configuration
func NewDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Enabled:    false,
		SQLitePath: "data/history.db",
	}
}

// RedisConfig configures the shared re-notify cooldown store. An empty Addr keeps cooldowns in memory.
type RedisConfig struct {
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty" validate:"min=0"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// NewDefaultRedisConfig creates default redis configuration
func NewDefaultRedisConfig() RedisConfig {
	return RedisConfig{KeyPrefix: "marketplace-monitor:cooldown:"}
}

// ServerConfig configures the status and metrics HTTP server
type ServerConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty" validate:"required_if=Enabled true"`
}

// NewDefaultServerConfig creates default server configuration
func NewDefaultServerConfig() ServerConfig {
	return ServerConfig{ListenAddr: "127.0.0.1:9090"}
}

// ResourceConfig configures the memory admission guard. Zero disables it.
type ResourceConfig struct {
	MaxMemoryPercent float64 `json:"max_memory_percent,omitempty" yaml:"max_memory_percent,omitempty" validate:"min=0,max=100"`
}

// NewDefaultResourceConfig creates default resource configuration
func NewDefaultResourceConfig() ResourceConfig {
	return ResourceConfig{}
}
