package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Configure sets the level ("debug", "info", "warn", "error") and the
// format ("text" or "json") of the process logger. Unknown values keep the
// current setting.
func Configure(level, format string) {
	if parsed, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		base.SetLevel(parsed)
	}
	switch strings.ToLower(format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func SetOutput(out io.Writer) {
	base.SetOutput(out)
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// Discard returns an entry that drops everything, for tests and quiet runs.
func Discard() *logrus.Entry {
	return logrus.NewEntry(newLogger(io.Discard))
}

func Root() *logrus.Logger {
	return base
}
