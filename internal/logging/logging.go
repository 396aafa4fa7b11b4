// Package logging hands out the single shared logger every btreestore
// package logs through, grounded on simplejsondb's init.go: output to
// stderr, level defaulting to Warn so normal operation stays quiet.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return l
}

// Log returns the shared logger.
func Log() *logrus.Logger {
	return logger
}
