package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermusr-data-pipeline/pulse-core/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		level, err := parseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, level)
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, in := range []string{"invalid", "trace", "fatal", ""} {
		_, err := parseLevel(in)
		assert.Error(t, err)
	}
}

func TestInitStdoutOnly(t *testing.T) {
	err := Init(config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, slog.Default())
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	err := Init(config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: []config.OutputConfig{
			{Type: "file", Path: logPath, MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7, Compress: true},
		},
	})
	require.NoError(t, err)

	slog.Info("test message", "key", "value")

	_, statErr := os.Stat(logPath)
	assert.NoError(t, statErr, "log file should have been created")
}

func TestInitWithInvalidLevel(t *testing.T) {
	err := Init(config.LogConfig{Level: "invalid", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestInitWithInvalidFormat(t *testing.T) {
	err := Init(config.LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported log format")
}

func TestInitWithMissingFilePath(t *testing.T) {
	err := Init(config.LogConfig{
		Level:  "info",
		Format: "json",
		Outputs: []config.OutputConfig{{Type: "file"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires 'path'")
}

func TestInitWithKafkaOutputMissingBrokers(t *testing.T) {
	err := Init(config.LogConfig{
		Level:  "info",
		Format: "json",
		Outputs: []config.OutputConfig{{Type: "kafka", Topic: "logs"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokers")
}
