package config

import (
	"fmt"
	"os"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

const (
	CACHE_BACKEND_NONE   = "none"
	CACHE_BACKEND_REDIS  = "redis"
	CACHE_BACKEND_BADGER = "badger"

	ENV_LOG_LEVEL   = "RELAY_ROUTER_LOG_LEVEL"
	ENV_REDIS_ADDR  = "RELAY_ROUTER_REDIS_ADDR"
	ENV_MQTT_BROKER = "RELAY_ROUTER_MQTT_BROKER"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Routing RoutingConfig `yaml:"routing"`
	Cache   CacheConfig   `yaml:"cache"`
	Mqtt    MqttConfig    `yaml:"mqtt"`
	Replay  ReplayConfig  `yaml:"replay"`
	Models  ModelsConfig  `yaml:"models"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is requests per second across the API; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// RoutingConfig.Weights falls back to the default vector when left out.
type RoutingConfig struct {
	FreshnessWindow time.Duration      `yaml:"freshness_window"`
	HoursAhead      int                `yaml:"hours_ahead"`
	Weights         map[string]float64 `yaml:"weights"`
}

type CacheConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDb   int           `yaml:"redis_db"`
	BadgerDir string        `yaml:"badger_dir"`
	Ttl       time.Duration `yaml:"ttl"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MqttConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientId string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Qos      byte   `yaml:"qos"`
}

type ReplayConfig struct {
	CsvPath  string `yaml:"csv_path"`
	Schedule string `yaml:"schedule"`
}

type ModelsConfig struct {
	LoadModelPath        string `yaml:"load_model_path"`
	ReliabilityModelPath string `yaml:"reliability_model_path"`
	ReloadSchedule       string `yaml:"reload_schedule"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       200,
			Burst:           50,
		},
		Routing: RoutingConfig{
			FreshnessWindow: common.FRESHNESS_WINDOW,
			HoursAhead:      1,
		},
		Cache: CacheConfig{
			Backend: CACHE_BACKEND_NONE,
			Ttl:     common.METRICS_CACHE_TTL,
			Timeout: 250 * time.Millisecond,
		},
		Mqtt: MqttConfig{
			ClientId: "relay-router",
			Topic:    "nodes/+/metrics",
			Qos:      1,
		},
		Replay: ReplayConfig{
			Schedule: "@every 30s",
		},
		Models: ModelsConfig{
			ReloadSchedule: "@every 10m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config over the defaults. An empty path yields the defaults. Environment overrides
// are applied before validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if level, ok := os.LookupEnv(ENV_LOG_LEVEL); ok {
		cfg.Log.Level = level
	}
	if addr, ok := os.LookupEnv(ENV_REDIS_ADDR); ok {
		cfg.Cache.RedisAddr = addr
	}
	if broker, ok := os.LookupEnv(ENV_MQTT_BROKER); ok {
		cfg.Mqtt.Broker = broker
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server: address is required")
	}
	if cfg.Server.RateLimit < 0 || cfg.Server.Burst < 0 {
		return fmt.Errorf("server: rate_limit and burst cannot be negative")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.Burst == 0 {
		cfg.Server.Burst = 1
	}

	if cfg.Routing.FreshnessWindow <= 0 {
		return fmt.Errorf("routing: freshness_window must be greater than zero")
	}
	if cfg.Routing.HoursAhead < 0 {
		return fmt.Errorf("routing: hours_ahead cannot be negative")
	}
	if len(cfg.Routing.Weights) == 0 {
		cfg.Routing.Weights = common.DefaultWeights()
	}

	switch cfg.Cache.Backend {
	case "", CACHE_BACKEND_NONE:
		cfg.Cache.Backend = CACHE_BACKEND_NONE
	case CACHE_BACKEND_REDIS:
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache: redis backend needs redis_addr")
		}
	case CACHE_BACKEND_BADGER:
	default:
		return fmt.Errorf("cache: unknown backend %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Ttl <= 0 {
		return fmt.Errorf("cache: ttl must be greater than zero")
	}

	if cfg.Mqtt.Enabled && cfg.Mqtt.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	if cfg.Mqtt.Qos > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}

	if hclog.LevelFromString(cfg.Log.Level) == hclog.NoLevel {
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}

	return nil
}
