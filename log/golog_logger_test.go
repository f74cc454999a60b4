package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedGolog() (*GologLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	g := golog.New()
	g.SetOutput(&buf)
	g.SetTimeFormat("")
	return NewGologLogger(g), &buf
}

func TestGologLoggerDefaults(t *testing.T) {
	logger, _ := newBufferedGolog()
	assert.Equal(t, LogLevelInfo, logger.GetLevel())
}

func TestGologLoggerLevelRoundTrip(t *testing.T) {
	logger, _ := newBufferedGolog()
	for _, level := range []LogLevel{LogLevelDebug, LogLevelWarn, LogLevelError, LogLevelNone} {
		logger.SetLevel(level)
		assert.Equal(t, level, logger.GetLevel())
	}
}

func TestGologLoggerFormatsArguments(t *testing.T) {
	logger, buf := newBufferedGolog()
	logger.SetLevel(LogLevelDebug)

	logger.Info("ingest: document %s merged %d entities", "d1", 4)
	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "ingest: document d1 merged 4 entities")
}

func TestGologLoggerFiltersBelowLevel(t *testing.T) {
	logger, buf := newBufferedGolog()
	logger.SetLevel(LogLevelError)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("dropped")
	assert.Empty(t, buf.String())

	logger.Error("graph store unreachable")
	assert.Contains(t, buf.String(), "graph store unreachable")
}
