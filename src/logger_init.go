package main

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// InitializeGlobalLogger configures logrus with the specified log level for the entire application
func InitializeGlobalLogger(logLevel string) {
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		logrus.WithError(err).WithField("log_level", logLevel).Warn("Failed to parse log level, defaulting to info")
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	logrus.WithField("log_level", level.String()).Debug("Global logger initialized")
}
