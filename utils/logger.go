package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	InfoLogger  = logrus.New()
	ErrorLogger = logrus.New()
)

// LogConfig controls format, level and rotation of both loggers.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"text"`
	Output     string `env:"LOG_OUTPUT" envDefault:"stdout"` // stdout, file, both
	Path       string `env:"LOG_PATH" envDefault:"./logs"`
	MaxSize    int    `env:"LOG_MAX_SIZE" envDefault:"100"` // MB
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"7"`
	MaxAge     int    `env:"LOG_MAX_AGE" envDefault:"7"` // days
	Compress   bool   `env:"LOG_COMPRESS" envDefault:"true"`
}

// InitLogger configures InfoLogger and ErrorLogger. With no config it
// falls back to text output on stdout/stderr.
func InitLogger(cfgs ...LogConfig) {
	cfg := LogConfig{Level: "info", Format: "text", Output: "stdout"}
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}

	InfoLogger = newLogger(cfg, "app.log", os.Stdout)
	ErrorLogger = newLogger(cfg, "error.log", os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	InfoLogger.SetLevel(level)
	ErrorLogger.SetLevel(logrus.ErrorLevel)
}

func newLogger(cfg LogConfig, file string, console io.Writer) *logrus.Logger {
	logger := logrus.New()

	if strings.ToLower(cfg.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	var writers []io.Writer
	switch strings.ToLower(cfg.Output) {
	case "file", "both":
		if err := os.MkdirAll(cfg.Path, 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Path, file),
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
		}
		if strings.ToLower(cfg.Output) == "both" || len(writers) == 0 {
			writers = append(writers, console)
		}
	default:
		writers = append(writers, console)
	}
	logger.SetOutput(io.MultiWriter(writers...))
	return logger
}
