// Package config loads daemon configuration from defaults, an optional YAML
// file and HAZARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/logger"
	"github.com/sweeney/hazard-sim/internal/mqtt"
	"github.com/sweeney/hazard-sim/internal/status"
)

// EnvPrefix prefixes environment overrides, e.g. HAZARD_HTTP_ADDR.
const EnvPrefix = "HAZARD"

// Config is the full daemon configuration.
type Config struct {
	Broker    BrokerConfig    `mapstructure:"broker"`
	Topics    TopicsConfig    `mapstructure:"topics"`
	Sim       SimConfig       `mapstructure:"sim"`
	Publish   PublishConfig   `mapstructure:"publish"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Console   ConsoleConfig   `mapstructure:"console"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// BrokerConfig holds the MQTT connection settings.
type BrokerConfig struct {
	URL               string        `mapstructure:"url"`
	ClientID          string        `mapstructure:"client_id"` // generated when empty
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
	Quiesce           time.Duration `mapstructure:"quiesce"`
	PendingCapacity   int           `mapstructure:"pending_capacity"`
}

// TopicsConfig holds the MQTT topic names.
type TopicsConfig struct {
	Sensors  string `mapstructure:"sensors"`
	Commands string `mapstructure:"commands"`
	Monitor  string `mapstructure:"monitor"`
	System   string `mapstructure:"system"`
}

// SimConfig holds simulation timing.
type SimConfig struct {
	DecayInterval time.Duration `mapstructure:"decay_interval"`
}

// PublishConfig holds telemetry cadence.
type PublishConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Guard    time.Duration `mapstructure:"guard"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
	RateBurst       int           `mapstructure:"rate_burst"`
	WSInterval      time.Duration `mapstructure:"ws_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConsoleConfig holds the activity log settings.
type ConsoleConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// TelemetryConfig holds external telemetry settings.
type TelemetryConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	d := mqtt.DefaultOptions()
	v.SetDefault("broker.url", d.Broker)
	v.SetDefault("broker.client_id", "")
	v.SetDefault("broker.connect_timeout", d.ConnectTimeout)
	v.SetDefault("broker.reconnect_interval", d.ReconnectInterval)
	v.SetDefault("broker.publish_timeout", d.PublishTimeout)
	v.SetDefault("broker.quiesce", d.Quiesce)
	v.SetDefault("broker.pending_capacity", d.PendingCapacity)

	v.SetDefault("topics.sensors", mqtt.TopicSensors)
	v.SetDefault("topics.commands", mqtt.TopicCommands)
	v.SetDefault("topics.monitor", mqtt.TopicMonitor)
	v.SetDefault("topics.system", mqtt.TopicSystem)

	v.SetDefault("sim.decay_interval", hazard.DecayTickInterval)

	v.SetDefault("publish.interval", 2*time.Second)
	v.SetDefault("publish.guard", 100*time.Millisecond)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit_per_sec", 10.0)
	v.SetDefault("http.rate_burst", 20)
	v.SetDefault("http.ws_interval", time.Second)

	v.SetDefault("log.level", logger.InfoLevel)
	v.SetDefault("log.format", logger.FormatConsole)
	v.SetDefault("console.max_entries", 500)
	v.SetDefault("telemetry.ttl", status.DefaultTelemetryTTL)
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Broker.URL == "" {
		errs = append(errs, errors.New("broker.url must be set"))
	}
	if c.Broker.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("broker.reconnect_interval must be positive"))
	}
	if c.Topics.Sensors == "" || c.Topics.Commands == "" || c.Topics.Monitor == "" || c.Topics.System == "" {
		errs = append(errs, errors.New("all topics must be set"))
	}
	if c.Topics.Commands == c.Topics.Monitor {
		errs = append(errs, errors.New("topics.commands and topics.monitor must differ"))
	}
	if c.Sim.DecayInterval <= 0 {
		errs = append(errs, errors.New("sim.decay_interval must be positive"))
	}
	if c.Publish.Interval <= 0 {
		errs = append(errs, errors.New("publish.interval must be positive"))
	}
	if c.Publish.Guard < 0 || c.Publish.Guard >= c.Publish.Interval {
		errs = append(errs, fmt.Errorf("publish.guard must be in [0, %v)", c.Publish.Interval))
	}
	if c.HTTP.RateLimitPerSec <= 0 || c.HTTP.RateBurst < 1 {
		errs = append(errs, errors.New("http.rate_limit_per_sec and http.rate_burst must be positive"))
	}
	if c.HTTP.WSInterval <= 0 {
		errs = append(errs, errors.New("http.ws_interval must be positive"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Log.Format != logger.FormatConsole && c.Log.Format != logger.FormatJSON {
		errs = append(errs, fmt.Errorf("log.format %q is not one of console, json", c.Log.Format))
	}
	if c.Console.MaxEntries < 1 {
		errs = append(errs, errors.New("console.max_entries must be at least 1"))
	}
	if c.Telemetry.TTL <= 0 {
		errs = append(errs, errors.New("telemetry.ttl must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// MQTTOptions converts the broker settings for mqtt.NewRealBridge.
func (c *Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:   c.Broker.URL,
		ClientID: c.Broker.ClientID,
		Topics: mqtt.Topics{
			Sensors:  c.Topics.Sensors,
			Commands: c.Topics.Commands,
			Monitor:  c.Topics.Monitor,
			System:   c.Topics.System,
		},
		ConnectTimeout:    c.Broker.ConnectTimeout,
		ReconnectInterval: c.Broker.ReconnectInterval,
		PublishTimeout:    c.Broker.PublishTimeout,
		Quiesce:           c.Broker.Quiesce,
		PendingCapacity:   c.Broker.PendingCapacity,
	}
}

// StatusConfig returns the subset shown on the status page.
func (c *Config) StatusConfig(clientID string) status.Config {
	return status.Config{
		Broker:            c.Broker.URL,
		ClientID:          clientID,
		SensorsTopic:      c.Topics.Sensors,
		CommandsTopic:     c.Topics.Commands,
		MonitorTopic:      c.Topics.Monitor,
		HTTPAddr:          c.HTTP.Addr,
		DecayIntervalMs:   c.Sim.DecayInterval.Milliseconds(),
		PublishIntervalMs: c.Publish.Interval.Milliseconds(),
	}
}

// YAML renders the effective configuration in the file format Load accepts.
// Durations are written as strings such as "2s".
func (c *Config) YAML() ([]byte, error) {
	doc := map[string]any{
		"broker": map[string]any{
			"url":                c.Broker.URL,
			"client_id":          c.Broker.ClientID,
			"connect_timeout":    c.Broker.ConnectTimeout.String(),
			"reconnect_interval": c.Broker.ReconnectInterval.String(),
			"publish_timeout":    c.Broker.PublishTimeout.String(),
			"quiesce":            c.Broker.Quiesce.String(),
			"pending_capacity":   c.Broker.PendingCapacity,
		},
		"topics": map[string]any{
			"sensors":  c.Topics.Sensors,
			"commands": c.Topics.Commands,
			"monitor":  c.Topics.Monitor,
			"system":   c.Topics.System,
		},
		"sim": map[string]any{
			"decay_interval": c.Sim.DecayInterval.String(),
		},
		"publish": map[string]any{
			"interval": c.Publish.Interval.String(),
			"guard":    c.Publish.Guard.String(),
		},
		"http": map[string]any{
			"addr":               c.HTTP.Addr,
			"rate_limit_per_sec": c.HTTP.RateLimitPerSec,
			"rate_burst":         c.HTTP.RateBurst,
			"ws_interval":        c.HTTP.WSInterval.String(),
		},
		"log":       map[string]any{"level": c.Log.Level, "format": c.Log.Format},
		"console":   map[string]any{"max_entries": c.Console.MaxEntries},
		"telemetry": map[string]any{"ttl": c.Telemetry.TTL.String()},
	}
	return yaml.Marshal(doc)
}
