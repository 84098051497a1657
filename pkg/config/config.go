package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultDeviceName is the advertised-name filter used when no address is given.
const DefaultDeviceName = "BBC micro:bit"

// WebhookConfig holds webhook forwarding configuration. Forwarding is enabled
// by a non-empty URL.
type WebhookConfig struct {
	URL             string        `yaml:"url"`
	Mode            string        `yaml:"mode" default:"batch"`
	Timeout         time.Duration `yaml:"timeout" default:"10s"`
	SecurityKey     string        `yaml:"security_key"`
	Characteristics []string      `yaml:"characteristics"`
}

// Config holds listen-session configuration. Values map 1:1 to the listen
// command's flags; a config file provides defaults that explicit flags override.
type Config struct {
	Address         string        `yaml:"address"`
	Name            string        `yaml:"name" default:"BBC micro:bit"`
	ScanTimeout     time.Duration `yaml:"scan_timeout" default:"10s"`
	Duration        time.Duration `yaml:"duration" default:"10s"`
	Characteristics []string      `yaml:"characteristics"`
	Webhook         WebhookConfig `yaml:"webhook"`
}

// Default returns the configuration with all default values applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance
func NewLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
