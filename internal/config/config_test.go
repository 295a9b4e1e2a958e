package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

const baseValid = `
kafka:
  brokers:
    - "kafka1:9092"
writer:
  temp_dir: "/tmp/pulse-core/temp"
  completed_dir: "/tmp/pulse-core/completed"
aggregator:
  expected_digitisers: [0, 1, 2]
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, baseValid+`
node:
  hostname: "test-host"
log:
  level: "debug"
  format: "json"
`))
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Node.Hostname)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"kafka1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []uint8{0, 1, 2}, cfg.Aggregator.ExpectedDigitisers)
}

func TestLoadInvalidLogLevel(t *testing.T) {
	_, err := Load(writeTmpConfig(t, baseValid+`
log:
  level: "invalid"
  format: "json"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadInvalidLogFormat(t *testing.T) {
	_, err := Load(writeTmpConfig(t, baseValid+`
log:
  level: "info"
  format: "invalid"
`))
	require.Error(t, err)
}

func TestAutoDetectHostname(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, baseValid))
	require.NoError(t, err)

	expected, _ := os.Hostname()
	assert.Equal(t, expected, cfg.Node.Hostname)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, baseValid))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
	assert.Equal(t, "digitiser_event", cfg.Topics.DigitiserEvent)
	assert.Equal(t, 1, cfg.Writer.ShardCount)

	ttl, err := cfg.Aggregator.Expiry()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, ttl)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PULSE_CORE_LOG_LEVEL", "debug")

	cfg, err := Load(writeTmpConfig(t, baseValid+`
log:
  level: "info"
  format: "json"
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingBrokers(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
writer:
  temp_dir: "/tmp/a"
  completed_dir: "/tmp/b"
aggregator:
  expected_digitisers: [0]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestLoadMissingExpectedDigitisers(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
kafka:
  brokers: ["kafka1:9092"]
writer:
  temp_dir: "/tmp/a"
  completed_dir: "/tmp/b"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected_digitisers")
}

func TestLoadMissingWriterDirs(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
kafka:
  brokers: ["kafka1:9092"]
aggregator:
  expected_digitisers: [0]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temp_dir")
}

func TestLoadInvalidFrameTTL(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
kafka:
  brokers:
    - "kafka1:9092"
writer:
  temp_dir: "/tmp/pulse-core/temp"
  completed_dir: "/tmp/pulse-core/completed"
aggregator:
  frame_ttl: "not-a-duration"
  expected_digitisers: [0]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame_ttl")
}
