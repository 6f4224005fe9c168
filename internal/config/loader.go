package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	CatalogPath string `json:"catalog_path" yaml:"catalog_path" toml:"catalog_path"`
	// DefaultDevice is the target device when an acquire request omits one.
	DefaultDevice string `json:"default_device" yaml:"default_device" toml:"default_device"`
	// OffloadDevice is where evicted instances land.
	OffloadDevice string `json:"offload_device" yaml:"offload_device" toml:"offload_device"`
	// PressureReliefMB is requested from the host arbiter before each
	// construction.
	PressureReliefMB int64 `json:"pressure_relief_mb" yaml:"pressure_relief_mb" toml:"pressure_relief_mb"`
	// DeviceBudgetMB caps the local host arbiter per device (0 = unlimited).
	DeviceBudgetMB map[string]int64 `json:"device_budget_mb" yaml:"device_budget_mb" toml:"device_budget_mb"`
	LogLevel       string           `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSEnabled    bool             `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins    []string         `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
