package logger

import (
	"io"
	stdlog "log"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/rs/zerolog"
)

// LoggerBuilder assembles a zerolog.Logger step by step
type LoggerBuilder struct {
	config    LoggerConfig
	factory   *WriterFactory
	converter *ConfigConverter
	err       error
}

func NewLoggerBuilder() *LoggerBuilder {
	return &LoggerBuilder{
		config:    DefaultLoggerConfig(),
		factory:   NewWriterFactory(),
		converter: NewConfigConverter(),
	}
}

// WithConfig replaces the settings with the parsed file section
func (lb *LoggerBuilder) WithConfig(cfg FileLogConfig) *LoggerBuilder {
	converted, err := lb.converter.ConvertConfig(cfg)
	if err != nil {
		lb.err = err
		return lb
	}
	converted.AppName = lb.config.AppName
	lb.config = converted
	return lb
}

func (lb *LoggerBuilder) WithLevel(level zerolog.Level) *LoggerBuilder {
	lb.config.Level = level
	return lb
}

// WithAppName adds an "app" field to every record
func (lb *LoggerBuilder) WithAppName(name string) *LoggerBuilder {
	lb.config.AppName = name
	return lb
}

// WithConsoleOutput redirects console records away from stderr
func (lb *LoggerBuilder) WithConsoleOutput(w io.Writer) *LoggerBuilder {
	lb.factory.console = w
	return lb
}

// Build also points the standard library logger at the result
func (lb *LoggerBuilder) Build() (*Logger, error) {
	if lb.err != nil {
		return nil, lb.err
	}
	if err := lb.validate(); err != nil {
		return nil, err
	}

	writers, err := lb.factory.Writers(lb.config)
	if err != nil {
		return nil, common.WrapError(err, "failed to open log file")
	}
	if len(writers) == 0 {
		return nil, common.NewError("no output writers configured")
	}

	zctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lb.config.Level).
		With().
		Timestamp()
	if lb.config.AppName != "" {
		zctx = zctx.Str("app", lb.config.AppName)
	}
	zl := zctx.Logger()

	zerolog.SetGlobalLevel(lb.config.Level)
	stdlog.SetOutput(zl)
	stdlog.SetFlags(0)

	return &Logger{zerolog: zl, config: lb.config}, nil
}

func (lb *LoggerBuilder) validate() error {
	if f := lb.config.File; f != nil && f.MaxSizeMB <= 0 {
		return common.NewValidationError("max_log_size_mb", f.MaxSizeMB, "max size must be positive")
	}
	return nil
}
