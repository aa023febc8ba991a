package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zap.AtomicLevel{
		"":      zap.NewAtomicLevelAt(zap.InfoLevel),
		"DEBUG": zap.NewAtomicLevelAt(zap.DebugLevel),
		"warn":  zap.NewAtomicLevelAt(zap.WarnLevel),
		"error": zap.NewAtomicLevelAt(zap.ErrorLevel),
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want.Level(), got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter("warn", &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("vault locked", zap.String("reason", "inactivity"))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "vault locked")
	assert.Contains(t, out, "inactivity")
}
