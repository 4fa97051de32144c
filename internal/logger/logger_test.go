package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Get()
	prevVerbose := IsVerbose()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() {
		current.Store(prev)
		verbose.Store(prevVerbose)
	})
	return buf
}

func TestDebugHiddenUnlessVerbose(t *testing.T) {
	buf := captureOutput(t)

	SetVerbose(false)
	Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetVerbose(true)
	Debug("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
}

func TestLevels(t *testing.T) {
	buf := captureOutput(t)
	SetVerbose(false)

	Info("info %s", "msg")
	Warn("warn %s", "msg")
	Error("error %s", "msg")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	levels := make([]string, 0, len(lines))
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		levels = append(levels, entry["level"].(string))
	}
	assert.Equal(t, []string{"info", "warn", "error"}, levels)
}
