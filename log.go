package cococonv

import "github.com/sirupsen/logrus"

// log is the logger used by all conversion and maintenance tasks.
var log = logrus.New()

// SetLogger replaces the package logger. A nil logger is ignored.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}
