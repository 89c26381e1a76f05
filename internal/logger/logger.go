package logger

import "github.com/rs/zerolog"

// AppName tags every record written by the binary
const AppName = "marketplace-monitor"

// Logger pairs a built zerolog.Logger with the settings behind it
type Logger struct {
	zerolog zerolog.Logger
	config  LoggerConfig
}

func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zerolog
}

func (l *Logger) Config() LoggerConfig {
	return l.config
}

// New builds the application logger from the `log` configuration section
func New(cfg FileLogConfig) (zerolog.Logger, error) {
	built, err := NewLoggerBuilder().WithAppName(AppName).WithConfig(cfg).Build()
	if err != nil {
		return zerolog.Logger{}, err
	}
	return built.zerolog, nil
}
