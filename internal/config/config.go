// Package config handles process configuration loading for the event
// manager: where its SQLite database lives, which broker to publish to,
// how verbosely to log, and the default poll deltas applied to events
// without their own explicit poll anchors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
)

// DefaultSearchPaths returns the config file search order: the current
// directory, the user's config dir, then the system-wide location.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "eventmanager", "config.yaml"))
	}

	paths = append(paths, "/etc/eventmanager/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty it must
// exist. Otherwise DefaultSearchPaths is searched in order and the first
// existing path wins.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all event manager process configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Broker   BrokerConfig   `yaml:"broker"`
	LogLevel string         `yaml:"log_level"`
	Poll     PollDefaults   `yaml:"poll_defaults"`
}

// BrokerConfig configures the outgoing MQTT connection.
type BrokerConfig struct {
	URL         string `yaml:"url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// PollDefaults overrides the built-in start/stop poll deltas applied when
// a calendar description doesn't specify its own.
type PollDefaults struct {
	StartPollHours int `yaml:"start_poll_hours"`
	StopPollHours  int `yaml:"stop_poll_hours"`
}

// EventPollDeltas converts the configured hour deltas into the
// event.PollDeltas the Manager threads into every Event's
// StartPollAt/StopPollAt. An hours field of zero leaves the
// corresponding hardcoded event package default in place.
func (p PollDefaults) EventPollDeltas() event.PollDeltas {
	return event.PollDeltas{
		Start: time.Duration(p.StartPollHours) * time.Hour,
		Stop:  time.Duration(p.StopPollHours) * time.Hour,
	}
}

// DBPath returns the SQLite database path under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "eventmanager.db")
}

// Load reads configuration from a YAML file, applies defaults for any
// unset fields, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = "eventmanager"
	}
	if c.Broker.TopicPrefix == "" {
		c.Broker.TopicPrefix = "teave/events"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.Poll.StartPollHours < 0 || c.Poll.StopPollHours < 0 {
		return fmt.Errorf("poll_defaults hours must not be negative")
	}
	if c.Poll.StartPollHours > 0 && c.Poll.StopPollHours > 0 &&
		c.Poll.StopPollHours >= c.Poll.StartPollHours {
		return fmt.Errorf("poll_defaults.stop_poll_hours must be less than start_poll_hours")
	}
	return nil
}

// Default returns a configuration suitable for local development: a
// relative data directory and no broker connection configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
