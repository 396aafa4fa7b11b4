package btreestore

import (
	"github.com/sirupsen/logrus"

	intlog "btreestore/internal/logging"
)

// logging returns the shared logger, matching the terse log.Debugf-style
// call sites throughout simplejsondb/core.
func logging() *logrus.Logger {
	return intlog.Log()
}
