package logger

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Valid(t *testing.T) {
	l, err := NewLogger("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, l.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, l.Formatter)
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger("loud", "text")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestWithComponent_AddsField(t *testing.T) {
	l, hook := test.NewNullLogger()

	WithComponent(l, "refresh").Info("hello")

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "refresh", hook.LastEntry().Data[ComponentKey])
}

func TestWithComponent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		WithComponent(nil, "x").Info("dropped")
	})
}
