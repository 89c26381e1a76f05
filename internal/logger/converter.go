package logger

// ConfigConverter turns the file section into LoggerConfig
type ConfigConverter struct {
	levels  *LogLevelParser
	formats *LogFormatParser
}

func NewConfigConverter() *ConfigConverter {
	return &ConfigConverter{levels: NewLogLevelParser(), formats: NewLogFormatParser()}
}

// ConvertConfig fails only on an unknown level
func (cc *ConfigConverter) ConvertConfig(cfg FileLogConfig) (LoggerConfig, error) {
	level, err := cc.levels.ParseLevel(cfg.LogLevel)
	if err != nil {
		return LoggerConfig{}, err
	}

	out := LoggerConfig{
		Level:   level,
		Format:  cc.formats.ParseFormat(cfg.LogFormat),
		Console: true,
	}
	if cfg.LogFile != "" {
		out.File = &RotationSettings{
			Path:       cfg.LogFile,
			MaxSizeMB:  positiveOr(cfg.MaxLogSizeMB, DefaultMaxLogSizeMB),
			MaxBackups: positiveOr(cfg.MaxLogBackups, DefaultMaxLogBackups),
			MaxAgeDays: positiveOr(cfg.MaxLogAgeDays, DefaultMaxLogAgeDays),
			Compress:   cfg.CompressRotated,
		}
	}
	return out, nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
