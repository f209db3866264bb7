package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the service logger: logrus writing to both stdout and a
// size-rotated file under dir.
func New(dir, level string) (*logrus.Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "oncall-service.log"),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(rotator, os.Stdout))
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger, nil
}
