package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MQTT      MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	Sink      SinkConfig      `json:"sink" yaml:"sink"`
	Monitor   MonitorConfig   `json:"monitor" yaml:"monitor"`
	Dedup     DedupConfig     `json:"dedup" yaml:"dedup"`
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Logging   LogConfig       `json:"logging" yaml:"logging"`
}

type MQTTConfig struct {
	Broker      string    `json:"broker" yaml:"broker"`
	ClientID    string    `json:"clientId" yaml:"clientId"`
	Username    string    `json:"username" yaml:"username"`
	Password    string    `json:"password" yaml:"password"`
	TopicPrefix string    `json:"topicPrefix" yaml:"topicPrefix"`
	TLS         TLSConfig `json:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Enable   bool   `json:"enable" yaml:"enable"`
	CertFile string `json:"certFile" yaml:"certFile"`
	KeyFile  string `json:"keyFile" yaml:"keyFile"`
	CAFile   string `json:"caFile" yaml:"caFile"`
}

type SinkConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	URLs          []string `json:"urls" yaml:"urls"`
	SubjectPrefix string   `json:"subjectPrefix" yaml:"subjectPrefix"`
}

type MonitorConfig struct {
	HeartbeatTimeout string `json:"heartbeatTimeout" yaml:"heartbeatTimeout"` // Duration string
	CheckInterval    string `json:"checkInterval" yaml:"checkInterval"`       // Duration string
	StaleWindow      string `json:"staleWindow" yaml:"staleWindow"`           // Duration string
}

type DedupConfig struct {
	Window     string `json:"window" yaml:"window"` // Duration string
	MaxEntries int    `json:"maxEntries" yaml:"maxEntries"`
}

type ReconnectConfig struct {
	InitialDelay     string `json:"initialDelay" yaml:"initialDelay"`         // Duration string
	MaxDelay         string `json:"maxDelay" yaml:"maxDelay"`                 // Duration string
	OutageAlertAfter string `json:"outageAlertAfter" yaml:"outageAlertAfter"` // Duration string
}

type HTTPConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Address     string `json:"address" yaml:"address"`
	MetricsPath string `json:"metricsPath" yaml:"metricsPath"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath"` // file path or "stdout"
	Encoding   string `json:"encoding" yaml:"encoding"`     // json or console
	MaxSize    int    `json:"maxSize" yaml:"maxSize"`       // megabytes before rotation
	MaxAge     int    `json:"maxAge" yaml:"maxAge"`         // days to keep rotated files
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// Load reads and parses the configuration file. YAML files are detected by
// extension, everything else is parsed as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "mqtt-trade-relay"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "polyspike/"
	}

	if c.Sink.SubjectPrefix == "" {
		c.Sink.SubjectPrefix = "relay.notify"
	}

	if c.Monitor.HeartbeatTimeout == "" {
		c.Monitor.HeartbeatTimeout = "90s"
	}
	if c.Monitor.CheckInterval == "" {
		c.Monitor.CheckInterval = "30s"
	}
	if c.Monitor.StaleWindow == "" {
		c.Monitor.StaleWindow = "5m"
	}

	if c.Dedup.Window == "" {
		c.Dedup.Window = "1h"
	}
	if c.Dedup.MaxEntries <= 0 {
		c.Dedup.MaxEntries = 1000
	}

	if c.Reconnect.InitialDelay == "" {
		c.Reconnect.InitialDelay = "1s"
	}
	if c.Reconnect.MaxDelay == "" {
		c.Reconnect.MaxDelay = "60s"
	}
	if c.Reconnect.OutageAlertAfter == "" {
		c.Reconnect.OutageAlertAfter = "5m"
	}

	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Logging.MaxSize <= 0 {
		c.Logging.MaxSize = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker address is required")
	}
	if !strings.HasSuffix(cfg.MQTT.TopicPrefix, "/") {
		return fmt.Errorf("mqtt topic prefix must end with '/': %s", cfg.MQTT.TopicPrefix)
	}

	if cfg.MQTT.TLS.Enable {
		if cfg.MQTT.TLS.CertFile == "" {
			return fmt.Errorf("tls cert file is required when tls is enabled")
		}
		if cfg.MQTT.TLS.KeyFile == "" {
			return fmt.Errorf("tls key file is required when tls is enabled")
		}
		if cfg.MQTT.TLS.CAFile == "" {
			return fmt.Errorf("tls ca file is required when tls is enabled")
		}
	}

	if cfg.Sink.Enabled && len(cfg.Sink.URLs) == 0 {
		return fmt.Errorf("sink urls are required when sink is enabled")
	}

	durations := []struct {
		name  string
		value string
	}{
		{"monitor heartbeat timeout", cfg.Monitor.HeartbeatTimeout},
		{"monitor check interval", cfg.Monitor.CheckInterval},
		{"monitor stale window", cfg.Monitor.StaleWindow},
		{"dedup window", cfg.Dedup.Window},
		{"reconnect initial delay", cfg.Reconnect.InitialDelay},
		{"reconnect max delay", cfg.Reconnect.MaxDelay},
		{"reconnect outage threshold", cfg.Reconnect.OutageAlertAfter},
	}
	for _, dv := range durations {
		d, err := time.ParseDuration(dv.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", dv.name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", dv.name)
		}
	}

	if cfg.Reconnect.MaxDelayDuration() < cfg.Reconnect.InitialDelayDuration() {
		return fmt.Errorf("reconnect max delay %s is below initial delay %s",
			cfg.Reconnect.MaxDelay, cfg.Reconnect.InitialDelay)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	return nil
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(broker, topicPrefix, httpAddr string, heartbeatTimeout, checkInterval time.Duration) {
	if broker != "" {
		c.MQTT.Broker = broker
	}
	if topicPrefix != "" {
		c.MQTT.TopicPrefix = topicPrefix
	}
	if httpAddr != "" {
		c.HTTP.Address = httpAddr
	}
	if heartbeatTimeout > 0 {
		c.Monitor.HeartbeatTimeout = heartbeatTimeout.String()
	}
	if checkInterval > 0 {
		c.Monitor.CheckInterval = checkInterval.String()
	}
}

// Duration accessors. All duration strings are validated in Load, so parse
// errors are impossible for a loaded config; zero is returned for strings
// that never went through validation.

func (m MonitorConfig) HeartbeatTimeoutDuration() time.Duration {
	return mustDuration(m.HeartbeatTimeout)
}

func (m MonitorConfig) CheckIntervalDuration() time.Duration { return mustDuration(m.CheckInterval) }
func (m MonitorConfig) StaleWindowDuration() time.Duration   { return mustDuration(m.StaleWindow) }

func (d DedupConfig) WindowDuration() time.Duration { return mustDuration(d.Window) }

func (r ReconnectConfig) InitialDelayDuration() time.Duration { return mustDuration(r.InitialDelay) }
func (r ReconnectConfig) MaxDelayDuration() time.Duration     { return mustDuration(r.MaxDelay) }
func (r ReconnectConfig) OutageAlertAfterDuration() time.Duration {
	return mustDuration(r.OutageAlertAfter)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
