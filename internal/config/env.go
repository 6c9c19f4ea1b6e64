package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays TAGLOG_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("TAGLOG_DEFAULT_NAMESPACE_NAME"); v != "" {
		cfg.DefaultNamespaceName = v
	}
	if v := os.Getenv("TAGLOG_NAMESPACE_NAME_REGEX"); v != "" {
		cfg.NamespaceNameRegex = v
	}
	if v := os.Getenv("TAGLOG_ALLOWED_NAMESPACES"); v != "" {
		parts := strings.Split(v, ",")
		cfg.AllowedNamespaces = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.AllowedNamespaces = append(cfg.AllowedNamespaces, p)
			}
		}
	}
	if v := os.Getenv("TAGLOG_SUBSCRIBER_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SubscriberBuffer = n
		}
	}
	if v := os.Getenv("TAGLOG_SWEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.SweepIntervalMs = n
		}
	}
	if v := os.Getenv("TAGLOG_ARCHIVE_DIR"); v != "" {
		cfg.ArchiveDir = v
	}
}
