// Package log provides taglog's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by log/slog via
// a bridge handler feeding our formatter/outputs pipeline, so output stays
// consistent across the CLI, the server and the storage layer.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"), log.Namespace("app"))
//	l.Info("server started", log.Str("http", ":8080"))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config: text or JSON
// formatting, console/file/null outputs, key redaction and sampling.
//
// # Interop
//
// ToStdLogger and RedirectStdLog cover libraries that log through the
// standard library logger (Pebble, gin debug output).
package log
