// Package httpserver is the REST gateway for taglog, built on gin.
//
// Routes:
//
//	GET    /v1/healthz
//	GET    /v1/namespaces
//	POST   /v1/logs            write a record
//	GET    /v1/logs            query (tag, attr, min_ts, max_ts, limit, filter)
//	DELETE /v1/logs            drop every key of a namespace
//	GET    /v1/logs/latest
//	GET    /v1/logs/count
//	GET    /v1/logs/listen     Server-Sent Events
//	GET    /v1/records/:id
//	POST   /v1/sweep
//	GET    /metrics
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
