package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Memtrace MemtraceConfig `yaml:"memtrace"`
}

// MemtraceConfig is the project configuration.
type MemtraceConfig struct {
	Input         InputConfig         `yaml:"input"`
	Producer      ProducerConfig      `yaml:"producer"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Rules         RulesConfig         `yaml:"rules"`
	Output        OutputConfig        `yaml:"output"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	State         StateConfig         `yaml:"state"`
	ReplayCapture ReplayCaptureConfig `yaml:"replay_capture"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// InputConfig controls the input reader.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// ProducerConfig controls where produced records are pushed. Empty fields
// fall back to input.redis.
type ProducerConfig struct {
	Redis     RedisConfig `yaml:"redis"`
	BatchSize int         `yaml:"batch_size"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RulesConfig controls Sigma rule tagging.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RedisConfig controls Redis access.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// OutputConfig controls decoded event output.
type OutputConfig struct {
	Mode       string                 `yaml:"mode"` // file|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// AlertsConfig controls deferred-pressure scoring.
type AlertsConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Window    time.Duration     `yaml:"window"`
	Threshold int               `yaml:"threshold"`
	MaxRows   int               `yaml:"max_rows"`
	Cooldown  time.Duration     `yaml:"cooldown"`
	Output    AlertOutputConfig `yaml:"output"`
}

// AlertOutputConfig controls the alert sink.
type AlertOutputConfig struct {
	Mode string           `yaml:"mode"` // file|http
	File FileOutputConfig `yaml:"file"`
	HTTP HTTPOutputConfig `yaml:"http"`
}

// StateConfig controls the Redis per-allocator state index.
type StateConfig struct {
	Enabled   bool   `yaml:"enabled"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ReplayCaptureConfig controls raw message capture for replay.
type ReplayCaptureConfig struct {
	Enabled bool             `yaml:"enabled"`
	File    FileOutputConfig `yaml:"file"`
}

// MetricsConfig controls the metrics/health HTTP listener.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// FileOutputConfig config for local output files.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	m := &c.Memtrace

	if m.Input.Redis.Addr == "" {
		m.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if m.Input.Redis.Key == "" {
		m.Input.Redis.Key = "memtrace:deallocations"
	}
	if m.Input.Redis.BlockTimeout == 0 {
		m.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if m.Producer.Redis.Addr == "" {
		m.Producer.Redis.Addr = m.Input.Redis.Addr
		if m.Producer.Redis.Password == "" {
			m.Producer.Redis.Password = m.Input.Redis.Password
		}
		if m.Producer.Redis.DB == 0 {
			m.Producer.Redis.DB = m.Input.Redis.DB
		}
	}
	if m.Producer.Redis.Key == "" {
		m.Producer.Redis.Key = m.Input.Redis.Key
	}
	if m.Producer.BatchSize <= 0 {
		m.Producer.BatchSize = 500
	}

	if m.Pipeline.Workers <= 0 {
		m.Pipeline.Workers = 8
	}
	if m.Pipeline.BatchSize <= 0 {
		m.Pipeline.BatchSize = 1000
	}
	if m.Pipeline.FlushInterval <= 0 {
		m.Pipeline.FlushInterval = 2 * time.Second
	}

	if m.Output.Mode == "" {
		m.Output.Mode = "file"
	}
	if m.Output.File.Path == "" {
		m.Output.File.Path = "output/deallocations.jsonl"
	}
	if m.Output.ClickHouse.Database == "" {
		m.Output.ClickHouse.Database = "memtrace"
	}
	if m.Output.ClickHouse.Table == "" {
		m.Output.ClickHouse.Table = "deallocations"
	}

	if m.Alerts.Window <= 0 {
		m.Alerts.Window = 5 * time.Minute
	}
	if m.Alerts.Threshold <= 0 {
		m.Alerts.Threshold = 100
	}
	if m.Alerts.MaxRows <= 0 {
		m.Alerts.MaxRows = 50
	}
	if m.Alerts.Cooldown <= 0 {
		m.Alerts.Cooldown = 2 * time.Minute
	}
	if m.Alerts.Output.Mode == "" {
		m.Alerts.Output.Mode = "file"
	}
	if m.Alerts.Output.File.Path == "" {
		m.Alerts.Output.File.Path = "output/alerts.jsonl"
	}

	if m.State.KeyPrefix == "" {
		m.State.KeyPrefix = "memtrace:allocator_state"
	}

	if m.ReplayCapture.File.Path == "" {
		m.ReplayCapture.File.Path = "output/capture.bin.zst"
	}

	if m.Logging.Level == "" {
		m.Logging.Level = "info"
	}
}
