// Package logging provides the leveled, named loggers used throughout the
// shard core. The call shape (MustGetLogger, Infof/Errorf/Warnf/Debugf)
// mirrors the teacher's github.com/hyperledger/fabric/common/flogging
// package, which cannot be vendored standalone since it is internal to the
// Fabric monorepo. github.com/sirupsen/logrus supplies the same sugared,
// leveled API as a real, independently fetchable module.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	loggers = map[string]*Logger{}
	level   = logrus.InfoLevel
)

// Logger wraps a named *logrus.Entry.
type Logger struct {
	entry *logrus.Entry
}

// MustGetLogger returns the shared named logger, creating it on first use.
func MustGetLogger(name string) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}

	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	l := &Logger{entry: base.WithField("module", name)}
	loggers[name] = l
	return l
}

// SetLevel adjusts the level for all loggers created after this call (and,
// best-effort, existing ones).
func SetLevel(l logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	for _, logger := range loggers {
		logger.entry.Logger.SetLevel(l)
	}
}

func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry { return l.entry.WithFields(fields) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }
