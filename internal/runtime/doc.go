// Package runtime wires storage, config, metrics and per-namespace log
// engines into a single-node taglog instance.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	lg, _ := rt.Logger(ctx, "default")
//	_, _ = lg.LogText(ctx, "hello", taglog.WithTags("greeting"))
package runtime
