package loggerfx

import (
	"log"

	"github.com/sirupsen/logrus"
)

// DefaultLoggerAdapter routes output of components built around the standard
// logger (http.Server, cron) into logrus.
func DefaultLoggerAdapter(logger *logrus.Logger) *log.Logger {
	return log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0)
}
