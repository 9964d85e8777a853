package log

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Sriram-PR/seo-audit/pkg/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds the root logger from cfg. Console output goes to console; when cfg.File is set,
// the same records are also written to a size-rotated file. The returned Closer releases that file.
func Setup(cfg config.LogConfig, console io.Writer) (*logrus.Logger, io.Closer) {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	}

	var closer io.Closer = nopCloser{}
	out := console
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(console, rotating)
		closer = rotating
	}
	log.SetOutput(out)

	if cfg.Level != "" {
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", cfg.Level, err)
		} else {
			log.SetLevel(level)
		}
	}
	return log, closer
}
