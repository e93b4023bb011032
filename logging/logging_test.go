// ABOUTME: Tests for logger construction
// ABOUTME: Level parsing and JSON output fields
package logging

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: FormatJSON, Output: &buf})

	log.Info().Msg("hidden")
	log.Warn().Str("source", "imap").Msg("queue overflow")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "imap", entry["source"])
	assert.Equal(t, "queue overflow", entry["message"])
}
