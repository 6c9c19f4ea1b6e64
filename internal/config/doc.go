// Package config provides loading and environment overlay for taglog runtime
// configuration. Default() is the baseline, Load reads a JSON/YAML/TOML file
// through viper, and FromEnv overlays TAGLOG_* variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/taglog.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: config.DefaultDataDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
package config
