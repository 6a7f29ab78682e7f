package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level string, fn func()) string {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, InitLogger(Options{Level: level, NoColor: true, Output: buf}))
	t.Cleanup(func() {
		loggerMu.Lock()
		logger = nil
		loggerMu.Unlock()
	})

	fn()
	return buf.String()
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFn    func()
		contains []string
		excludes []string
	}{
		{
			name:     "info log",
			level:    "info",
			logFn:    func() { Info("test info message") },
			contains: []string{"test info message", "level=info"},
		},
		{
			name:     "debug log with debug level",
			level:    "debug",
			logFn:    func() { Debug("test debug message") },
			contains: []string{"test debug message", "level=debug"},
		},
		{
			name:     "debug log with info level",
			level:    "info",
			logFn:    func() { Debug("test debug message") },
			excludes: []string{"test debug message"},
		},
		{
			name:     "error log",
			level:    "error",
			logFn:    func() { Error("test error message") },
			contains: []string{"test error message", "level=error"},
		},
		{
			name:  "warn log with fields",
			level: "warn",
			logFn: func() {
				Warn("retrying download", Fields{"path": "main.unity3d", "attempt": 2})
			},
			contains: []string{"retrying download", "level=warning", "path=main.unity3d", "attempt=2"},
		},
		{
			name:     "success log",
			level:    "info",
			logFn:    func() { Success("download complete") },
			contains: []string{"download complete", "status=success"},
		},
		{
			name:     "invalid level falls back to info",
			level:    "chatty",
			logFn:    func() { Info("fallback works") },
			contains: []string{"fallback works"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureOutput(t, tt.level, tt.logFn)
			for _, s := range tt.contains {
				assert.Contains(t, output, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, output, s)
			}
		})
	}
}

func TestInitLogger_FileHook(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	buf := &bytes.Buffer{}
	require.NoError(t, InitLogger(Options{Level: "info", NoColor: true, Dir: dir, Output: buf}))
	t.Cleanup(func() {
		loggerMu.Lock()
		logger = nil
		loggerMu.Unlock()
	})

	Info("written to file")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestMergeFields(t *testing.T) {
	merged := mergeFields(Fields{"a": 1}, Fields{"b": 2}, Fields{"a": 3})
	assert.Equal(t, Fields{"a": 3, "b": 2}, merged)
}
