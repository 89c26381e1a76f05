package logger

import "github.com/rs/zerolog"

// LogFormat selects how records are rendered
type LogFormat int

const (
	FormatConsole LogFormat = iota
	FormatJSON
	FormatText
)

func (lf LogFormat) String() string {
	switch lf {
	case FormatJSON:
		return "json"
	case FormatText:
		return "text"
	}
	return "console"
}

// RotationSettings control the rotated log file
type RotationSettings struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LoggerConfig is FileLogConfig after parsing and defaulting
type LoggerConfig struct {
	Level   zerolog.Level
	Format  LogFormat
	AppName string
	Console bool
	File    *RotationSettings
}

// DefaultLoggerConfig logs to the console only
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:   zerolog.InfoLevel,
		Format:  FormatConsole,
		Console: true,
	}
}
