// Package logging builds the arbor logger from the logging section of the config.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"safetyqa/internal/config"
)

const timeFormat = "15:04:05"

// New configures console and file writers according to cfg.Output and sets the level.
// An empty output list logs to the console.
func New(cfg config.LoggingConfig) arbor.ILogger {
	logger := arbor.NewLogger()

	hasFile, hasConsole := false, len(cfg.Output) == 0
	for _, out := range cfg.Output {
		switch out {
		case "file":
			hasFile = true
		case "stdout", "console":
			hasConsole = true
		}
	}

	if hasFile {
		path := cfg.FilePath
		if path == "" {
			path = filepath.Join("logs", "safetyqa.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
			hasConsole = true
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   path,
				TimeFormat: timeFormat,
				MaxSize:    100 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: true,
			})
		}
	}

	if hasConsole {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: true,
		})
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}
