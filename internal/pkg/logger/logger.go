package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. JSON output outside dev so log shippers can parse it.
func New(env, level string) *logrus.Logger {
	return newWithOutput(os.Stdout, env, level)
}

func newWithOutput(out io.Writer, env, level string) *logrus.Logger {
	log := logrus.New()
	log.Out = out

	if strings.EqualFold(env, "dev") || strings.EqualFold(env, "test") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}
