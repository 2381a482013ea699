package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how log lines are written.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// New returns a logrus logger with sane defaults for the CLI. When a file is
// configured, lines go to both stderr and a rotated log file.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	log.SetOutput(os.Stderr)
	if cfg.File == "" {
		return log
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		log.WithError(err).Error("Could not create log directory")
		return log
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 50),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	return log
}

// Nop returns an entry that drops everything. Components fall back to it
// when constructed without a logger.
func Nop() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// OrNop returns e, or a discarding entry when e is nil.
func OrNop(e *logrus.Entry) *logrus.Entry {
	if e == nil {
		return Nop()
	}
	return e
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
