package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
)

type LoggerConfig struct {
	LogLevel      hclog.Level
	JSONLogFormat bool
	LogFilePath   string
	Name          string
	// rotation settings for the file writer, defaults applied when zero
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger creates a hclog logger. If LogFilePath is set, output goes to a
// size-rotated log file instead of stderr.
func NewLogger(config LoggerConfig) (hclog.Logger, error) {
	var output io.Writer

	if config.LogFilePath != "" {
		fullFilePath := filepath.Base(config.LogFilePath)

		if dir := filepath.Dir(config.LogFilePath); dir != "/" && strings.TrimLeft(dir, ".") != "" {
			if dirErr := os.MkdirAll(dir, os.ModePerm); dirErr == nil {
				fullFilePath = filepath.Join(dir, fullFilePath)
			}
		}

		if !strings.HasSuffix(fullFilePath, ".log") {
			fullFilePath += ".log"
		}

		maxSize := config.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultMaxSizeMB
		}

		maxBackups := config.MaxBackups
		if maxBackups <= 0 {
			maxBackups = defaultMaxBackups
		}

		output = &lumberjack.Logger{
			Filename:   fullFilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     config.MaxAgeDays,
		}
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      config.LogLevel,
		Output:     output,
		JSONFormat: config.JSONLogFormat,
	}), nil
}
