package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is usable before Init; Init only reconfigures it.
var Logger = logrus.New()

func Init(level string, appEnv string, logDir string) error {
	Logger = logrus.New()

	appEnv = strings.ToLower(appEnv)

	//default environment is development
	if appEnv == "" {
		appEnv = "development"
	}
	if appEnv == "production" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	Logger.SetLevel(parseLevel(level))

	if logDir == "" {
		Logger.SetOutput(os.Stdout)
		return nil
	}

	currentDate := time.Now().Format("02_01_2006")
	logFileName := currentDate + ".log"
	fullPath := filepath.Join(logDir, logFileName)

	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	Logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
