package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DefaultNamespaceName is the key prefix used when a request names none.
	DefaultNamespaceName string   `json:"defaultNamespaceName" mapstructure:"defaultNamespaceName"`
	NamespaceNameRegex   string   `json:"namespaceNameRegex" mapstructure:"namespaceNameRegex"`
	AllowedNamespaces    []string `json:"allowedNamespaces" mapstructure:"allowedNamespaces"`

	// SubscriberBuffer is the per-subscription delivery buffer; full buffers drop.
	SubscriberBuffer int `json:"subscriberBuffer" mapstructure:"subscriberBuffer"`

	// SweepIntervalMs schedules expiration sweeps inside the server. 0 disables.
	SweepIntervalMs int `json:"sweepIntervalMs" mapstructure:"sweepIntervalMs"`
	// ArchiveDir, when set, receives zstd-compressed JSONL of swept records.
	ArchiveDir string `json:"archiveDir" mapstructure:"archiveDir"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DefaultNamespaceName: "default",
		NamespaceNameRegex:   "^[A-Za-z0-9_.-]{0,64}$",
		SubscriberBuffer:     1024,
	}
}

// Load reads configuration from a JSON, YAML or TOML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}
