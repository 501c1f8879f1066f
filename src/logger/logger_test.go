package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOutput("info", "refresh", &buf)

	l.Debug("hidden %d", 1)
	l.Info("dataset %s ready", "sp500")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "refresh", entry["component"])
	assert.Equal(t, "dataset sp500 ready", entry["message"])
}

func TestNamedLoggerKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewLoggerWithOutput("warning", "root", &buf)
	child := root.Named("cache")

	child.Info("dropped")
	child.Warning("kept")

	assert.Equal(t, "cache", child.Name())
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"component":"cache"`)
}

func TestSilentLogger(t *testing.T) {
	l := NewSilentLogger()
	assert.NotPanics(t, func() { l.Error("nothing %s", "here") })
}
