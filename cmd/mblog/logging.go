package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/mblog/pkg/config"
)

// configureLogger creates a logger with the appropriate log level based on flags.
// It respects both --log-level and repeated -v flags, with --log-level taking
// precedence. Without either the level is warn; -v raises it to info, -vv to
// debug. Returns a configured logger or error if the log-level is invalid.
func configureLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	logLevel := logrus.WarnLevel

	// Check --log-level first (takes precedence)
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	} else {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		switch {
		case verbosity == 1:
			logLevel = logrus.InfoLevel
		case verbosity >= 2:
			logLevel = logrus.DebugLevel
		}
	}

	return config.NewLogger(logLevel), nil
}
