package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the corelink CLI configuration, loaded from a TOML file.
type Config struct {
	Device DeviceConfig `toml:"device"`
	Etcd   EtcdConfig   `toml:"etcd"`
	Log    LogConfig    `toml:"log"`
}

// DeviceConfig selects the controller to drive: either a direct address or
// a name resolved through the registry.
type DeviceConfig struct {
	Address string `toml:"address"`
	Name    string `toml:"name"`
}

// EtcdConfig points at the registry cluster used for name resolution.
type EtcdConfig struct {
	Endpoints []string `toml:"endpoints"`
}

// LogConfig controls CLI logging.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads a TOML config file. A missing file at the default path
// is not an error; a missing file named explicitly is.
func LoadConfig(path string, explicit bool) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration can select a device at all.
func (c Config) Validate() error {
	if c.Device.Address == "" && c.Device.Name == "" {
		return fmt.Errorf("config selects no device: set device.address or device.name")
	}
	if c.Device.Name != "" && c.Device.Address == "" && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("device.name %q needs etcd.endpoints for resolution", c.Device.Name)
	}
	return nil
}
