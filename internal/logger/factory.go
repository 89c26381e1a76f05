package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type formatter func(out io.Writer) io.Writer

func consoleFormatter(noColor bool) formatter {
	return func(out io.Writer) io.Writer {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime, NoColor: noColor}
	}
}

func jsonFormatter(out io.Writer) io.Writer { return out }

// WriterFactory turns a LoggerConfig into output writers
type WriterFactory struct {
	formatters map[LogFormat]formatter
	console    io.Writer
}

// NewWriterFactory writes console output to stderr
func NewWriterFactory() *WriterFactory {
	return &WriterFactory{
		formatters: map[LogFormat]formatter{
			FormatConsole: consoleFormatter(false),
			FormatText:    consoleFormatter(true),
			FormatJSON:    jsonFormatter,
		},
		console: os.Stderr,
	}
}

func (wf *WriterFactory) format(f LogFormat) formatter {
	if fn, ok := wf.formatters[f]; ok {
		return fn
	}
	return consoleFormatter(false)
}

// Writers returns the console and file writers enabled in cfg
func (wf *WriterFactory) Writers(cfg LoggerConfig) ([]io.Writer, error) {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, wf.format(cfg.Format)(wf.console))
	}
	if cfg.File != nil {
		w, err := wf.fileWriter(cfg.Format, *cfg.File)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, nil
}

// fileWriter never colors its output
func (wf *WriterFactory) fileWriter(f LogFormat, rotation RotationSettings) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(rotation.Path), 0755); err != nil {
		return nil, err
	}
	rotating := &lumberjack.Logger{
		Filename:   rotation.Path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
		LocalTime:  true,
	}
	if f == FormatJSON {
		return rotating, nil
	}
	return consoleFormatter(true)(rotating), nil
}
