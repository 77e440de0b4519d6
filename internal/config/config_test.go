package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.Routing.FreshnessWindow)
	assert.Equal(t, 1, cfg.Routing.HoursAhead)
	assert.Equal(t, CACHE_BACKEND_NONE, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.Ttl)
	assert.Equal(t, 0.25, cfg.Routing.Weights["latency"])
	assert.False(t, cfg.Mqtt.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
routing:
  freshness_window: 2m
  weights:
    latency: 1
    distance: 1
cache:
  backend: redis
  redis_addr: "redis:6379"
mqtt:
  enabled: true
  broker: "tcp://broker:1883"
replay:
  csv_path: fleet.csv
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Routing.FreshnessWindow)
	assert.Equal(t, map[string]float64{"latency": 1, "distance": 1}, cfg.Routing.Weights)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "nodes/+/metrics", cfg.Mqtt.Topic)
	assert.Equal(t, "fleet.csv", cfg.Replay.CsvPath)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv(ENV_LOG_LEVEL, "warn")
	t.Setenv(ENV_MQTT_BROKER, "tcp://env-broker:1883")

	cfg, err := Load(writeConfig(t, "mqtt:\n  enabled: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "tcp://env-broker:1883", cfg.Mqtt.Broker)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "server: [\n"))
	assert.ErrorContains(t, err, "parse config")

	cases := map[string]string{
		"unknown backend":  "cache:\n  backend: memcached\n",
		"redis without":    "cache:\n  backend: redis\n",
		"zero freshness":   "routing:\n  freshness_window: 0s\n",
		"mqtt no broker":   "mqtt:\n  enabled: true\n",
		"bad qos":          "mqtt:\n  qos: 3\n",
		"bad log level":    "log:\n  level: loud\n",
		"negative ratelim": "server:\n  rate_limit: -1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(ENV_MQTT_BROKER, "")
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
