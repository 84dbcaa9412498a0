package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"", "json", "console", "JSON"} {
		logger, atom, err := New("debug", format)
		require.NoError(t, err, format)
		assert.Equal(t, zapcore.DebugLevel, atom.Level())
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, _, err := New("info", "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	atom, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, atom.Level())

	atom, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, atom.Level())

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestAtomicLevelIsLive(t *testing.T) {
	logger, atom, err := New("error", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	atom.SetLevel(zapcore.InfoLevel)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
