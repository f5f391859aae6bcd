package testutils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a logger that discards output unless IMUBLE_TEST_LOG
// is set, in which case it logs at debug level to stderr.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	if os.Getenv("IMUBLE_TEST_LOG") == "" {
		logger.SetOutput(io.Discard)
		return logger
	}
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
