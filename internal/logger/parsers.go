package logger

import (
	"strings"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/rs/zerolog"
)

// levelAliases maps level names used by older configs onto zerolog names
var levelAliases = map[string]string{
	"warning":  "warn",
	"critical": "fatal",
}

// LogLevelParser handles parsing of log levels
type LogLevelParser struct{}

// NewLogLevelParser creates a new log level parser
func NewLogLevelParser() *LogLevelParser {
	return &LogLevelParser{}
}

// ParseLevel parses a case-insensitive level name such as "INFO" or "warning"
func (llp *LogLevelParser) ParseLevel(levelStr string) (zerolog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(levelStr))
	if alias, ok := levelAliases[name]; ok {
		name = alias
	}
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel, common.WrapError(err, "invalid log level")
	}
	return level, nil
}

// IsValidLevel reports whether ParseLevel accepts the given name
func IsValidLevel(levelStr string) bool {
	_, err := NewLogLevelParser().ParseLevel(levelStr)
	return err == nil
}

// LogFormatParser handles parsing of log formats
type LogFormatParser struct{}

// NewLogFormatParser creates a new log format parser
func NewLogFormatParser() *LogFormatParser {
	return &LogFormatParser{}
}

// ParseFormat parses string format to LogFormat
func (lfp *LogFormatParser) ParseFormat(formatStr string) LogFormat {
	switch strings.ToLower(formatStr) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatConsole
	}
}
