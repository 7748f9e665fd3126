package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const ComponentKey = "component"

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(level, format string) (*log.Logger, error) {
	l := log.New()
	l.SetOutput(os.Stderr)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return l, nil
}

// Discard returns a logger that drops every entry.
func Discard() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// WithComponent tags entries with the emitting component.
func WithComponent(l log.FieldLogger, component string) log.FieldLogger {
	if l == nil {
		l = Discard()
	}
	return l.WithField(ComponentKey, component)
}
