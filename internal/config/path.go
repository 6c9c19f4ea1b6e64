package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir picks where the server keeps its Pebble store when --data-dir
// is not given: TAGLOG_DATA_DIR, then XDG_DATA_HOME, then a per-OS user data
// directory, falling back to ./data when no home directory is known.
func DefaultDataDir() string {
	if v := os.Getenv("TAGLOG_DATA_DIR"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "taglog")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "taglog")
	case "windows":
		return filepath.Join(home, "AppData", "Local", "taglog")
	default:
		return filepath.Join(home, ".local", "share", "taglog")
	}
}

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
