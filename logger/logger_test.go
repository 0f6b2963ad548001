package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelFatal, ParseLevel("fatal"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWriter(&buf, LogLevelWarn, "text")

	lg.Info("hidden")
	lg.Warnf("shown %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")

	lg.SetLogLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, lg.GetLogLevel())
	lg.Debug("now", "visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestFatalMutesOtherLevels(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWriter(&buf, LogLevelFatal, "text")
	exited := 0
	lg.(*logger).exit = func(code int) { exited = code }

	lg.Error("quiet")
	assert.Empty(t, buf.String())

	lg.Fatalf("boom")
	assert.Equal(t, 1, exited)
	assert.Contains(t, buf.String(), "level=FATAL")
	assert.Equal(t, LogLevelFatal, lg.GetLogLevel())
}

func TestJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWriter(&buf, LogLevelInfo, "json").With("channel", "UC1")
	lg.Infof("baseline set = %s\n", "vid42")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "baseline set = vid42", entry["msg"])
	assert.Equal(t, "UC1", entry["channel"])
	assert.Equal(t, "INFO", entry["level"])
}
