// Package logging tests for structured JSON logging.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line %q", line)
		entries = append(entries, entry)
	}
	return entries
}

// TestLogger_Info verifies the JSON shape of an info entry.
func TestLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Info("technique added", map[string]interface{}{"mode": "gi", "sort_order": 2})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "technique added", entries[0]["message"])
	assert.Equal(t, "gi", entries[0]["mode"])
	assert.EqualValues(t, 2, entries[0]["sort_order"])
	assert.NotEmpty(t, entries[0]["time"])
}

// TestLogger_Error verifies the error field is written.
func TestLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Error("commit failed", errors.New("disk full"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0]["level"])
	assert.Equal(t, "disk full", entries[0]["error"])
}

// TestLogger_filtering verifies messages below the minimum level are dropped.
func TestLogger_filtering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["message"])
	assert.Equal(t, "error", entries[1]["message"])
}

// TestLogger_mergedContext verifies later context maps win.
func TestLogger_mergedContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Debug("merge",
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 1, entries[0]["a"])
	assert.EqualValues(t, 2, entries[0]["b"])
}

// TestLogger_concurrentLogging verifies lines never interleave.
func TestLogger_concurrentLogging(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Info("concurrent", map[string]interface{}{"i": i})
		}(i)
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, &buf), 20)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNop(t *testing.T) {
	// must not panic
	Nop().Error("ignored", errors.New("x"), map[string]interface{}{"k": "v"})
}

// TestPackageHelpers verifies the package-level helpers write through the global logger.
func TestPackageHelpers(t *testing.T) {
	Get()
	prev := global
	defer func() { global = prev }()

	var buf bytes.Buffer
	global = New(&buf, LevelDebug)

	Debug("d")
	Info("i", map[string]interface{}{"id": "a"})
	Warn("w")
	Error("e", errors.New("boom"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)
	levels := []string{"debug", "info", "warn", "error"}
	for i, want := range levels {
		assert.Equal(t, want, entries[i]["level"])
	}
	assert.Equal(t, "a", entries[1]["id"])
	assert.Equal(t, "boom", entries[3]["error"])
}
