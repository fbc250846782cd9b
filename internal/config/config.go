// Package config loads the YAML-configured settings for the mesh node
// daemon and the admin API, mirroring the teacher's one-package,
// multiple-struct layout.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeConfig is the configuration for the meshnode daemon.
type NodeConfig struct {
	IdentityPath     string         `yaml:"identity_path"`
	DatabasePath     string         `yaml:"database_path"`
	PairingCode      string         `yaml:"pairing_code"`
	MaxRelayHops     int            `yaml:"max_relay_hops"`
	BatteryThreshold int            `yaml:"battery_threshold"`
	RelayEnabled     bool           `yaml:"relay_enabled"`
	AdminAPI         AdminAPIConfig `yaml:"admin_api"`
	LogLevel         string         `yaml:"log_level"`
}

// AdminAPIConfig is the local admin/debug API surface.
type AdminAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	JWTSecret string `yaml:"jwt_secret"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// DefaultNodeConfig returns a config with the documented defaults:
// relay enabled, a 10-hop ceiling, and a 20% battery floor.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		IdentityPath:     "./meshcore-identity.key",
		DatabasePath:     "sqlite://./meshcore.db",
		MaxRelayHops:     10,
		BatteryThreshold: 20,
		RelayEnabled:     true,
		AdminAPI: AdminAPIConfig{
			Enabled:   true,
			Listen:    "127.0.0.1:9394",
			JWTSecret: "change-me-in-production",
			Username:  "admin",
			Password:  "admin",
		},
		LogLevel: "info",
	}
}

// LoadNodeConfig loads node config from a YAML file, starting from
// DefaultNodeConfig so any field the file omits keeps its default.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, fmt.Errorf("load node config: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
