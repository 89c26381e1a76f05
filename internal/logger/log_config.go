package logger

// Defaults for the `log` section
const (
	DefaultLogFormat     = "console"
	DefaultLogLevel      = "INFO"
	DefaultMaxLogBackups = 3
	DefaultMaxLogSizeMB  = 100
	DefaultMaxLogAgeDays = 30
)

// FileLogConfig is the `log` section of the configuration file.
// An empty LogFile disables file output.
type FileLogConfig struct {
	LogFile         string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	LogFormat       string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,logformat"`
	LogLevel        string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,loglevel"`
	MaxLogBackups   int    `json:"max_log_backups,omitempty" yaml:"max_log_backups,omitempty" validate:"omitempty,min=0"`
	MaxLogSizeMB    int    `json:"max_log_size_mb,omitempty" yaml:"max_log_size_mb,omitempty" validate:"omitempty,min=1"`
	MaxLogAgeDays   int    `json:"max_log_age_days,omitempty" yaml:"max_log_age_days,omitempty" validate:"omitempty,min=0"`
	CompressRotated bool   `json:"compress_rotated,omitempty" yaml:"compress_rotated,omitempty"`
}

// NewDefaultFileLogConfig returns console logging at INFO with no file output
func NewDefaultFileLogConfig() FileLogConfig {
	return FileLogConfig{
		LogFormat:     DefaultLogFormat,
		LogLevel:      DefaultLogLevel,
		MaxLogBackups: DefaultMaxLogBackups,
		MaxLogSizeMB:  DefaultMaxLogSizeMB,
		MaxLogAgeDays: DefaultMaxLogAgeDays,
	}
}
