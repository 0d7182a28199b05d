package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirrors the logging section of config.yaml.
type Options struct {
	Level      string // debug | info | warn | error
	Format     string // text | json
	Output     string // stdout | stderr | file
	File       string // path when Output == file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup configures the global logrus logger. Unknown levels fall back
// to info.
func Setup(opts Options) {
	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	logrus.SetOutput(output(opts))
}

// SetLevel re-applies the level at runtime (config watch).
func SetLevel(raw string) {
	level, err := logrus.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return
	}
	logrus.SetLevel(level)
}

func output(opts Options) io.Writer {
	switch strings.ToLower(opts.Output) {
	case "stderr":
		return os.Stderr
	case "file":
		if opts.File == "" {
			return os.Stdout
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		return &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
	default:
		return os.Stdout
	}
}
