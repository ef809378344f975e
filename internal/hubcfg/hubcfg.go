// Package hubcfg loads /data/config.json, the persisted configuration
// layout from spec.md §6 (MQTT credentials, device name, multicast
// group/port, etc). Loading style (flag for CLI overrides, JSON file for
// persisted state) mirrors the teacher's server/main.go, which is flag-only;
// this system additionally needs a config file because several of its
// options (mqtt credentials) are provisioned once by an external config
// portal, not typed at the command line each run.
package hubcfg

import (
	"encoding/json"
	"fmt"
	"os"
)

// LogLevel enumerates spec.md §6's log_level values.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// MobileDevice is one entry in the mobile_devices config list.
type MobileDevice struct {
	Name          string `json:"name"`
	NotifyService string `json:"notify_service"`
}

// Config is the full contents of /data/config.json.
type Config struct {
	MQTTHost       string         `json:"mqtt_host"`
	MQTTPort       int            `json:"mqtt_port"`
	MQTTUser       string         `json:"mqtt_user"`
	MQTTPassword   string         `json:"mqtt_password"`
	DeviceName     string         `json:"device_name"`
	MulticastGroup string         `json:"multicast_group"`
	MulticastPort  int            `json:"multicast_port"`
	PiperHost      string         `json:"piper_host"`
	PiperPort      int            `json:"piper_port"`
	LogLevel       LogLevel       `json:"log_level"`
	MobileDevices  []MobileDevice `json:"mobile_devices"`
}

// applyDefaults fills in the documented defaults from spec.md §6 for any field
// left at its JSON zero value.
func (c *Config) applyDefaults() {
	if c.MulticastGroup == "" {
		c.MulticastGroup = "239.255.0.100"
	}
	if c.MulticastPort == 0 {
		c.MulticastPort = 5005
	}
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
}

// Validate checks the required fields per spec.md §6 (mqtt_user and
// mqtt_password are required).
func (c *Config) Validate() error {
	if c.MQTTUser == "" {
		return fmt.Errorf("[hubcfg] mqtt_user is required")
	}
	if c.MQTTPassword == "" {
		return fmt.Errorf("[hubcfg] mqtt_password is required")
	}
	return nil
}

// Load reads and validates /data/config.json at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[hubcfg] read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("[hubcfg] parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
