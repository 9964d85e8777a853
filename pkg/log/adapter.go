package log

import "github.com/sirupsen/logrus"

// BadgerAdapter implements the badger.Logger interface on top of logrus.
// Badger is chatty at info level, so its info messages are demoted to debug.
type BadgerAdapter struct {
	*logrus.Entry
}

// NewBadgerAdapter creates a new adapter
func NewBadgerAdapter(entry *logrus.Entry) *BadgerAdapter {
	return &BadgerAdapter{entry}
}

// Errorf logs an error message
func (l *BadgerAdapter) Errorf(f string, v ...interface{}) { l.Entry.Errorf(f, v...) }

// Warningf logs a warning message
func (l *BadgerAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warnf(f, v...) }

// Infof logs badger's info messages at debug level
func (l *BadgerAdapter) Infof(f string, v ...interface{}) { l.Entry.Debugf(f, v...) }

// Debugf logs a debug message
func (l *BadgerAdapter) Debugf(f string, v ...interface{}) { l.Entry.Debugf(f, v...) }
