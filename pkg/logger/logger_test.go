package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	SetLevel("debug")
	assert.Equal(t, zerolog.DebugLevel, Log.GetLevel())

	SetLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, Log.GetLevel())
}

func TestNewWritesConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Info().Str("bucket", "demo-bucket").Msg("bucket ready")

	assert.Contains(t, buf.String(), "bucket ready")
	assert.Contains(t, buf.String(), "demo-bucket")
}
