// Package logging provides structured logging for Sotehus Core.
//
// It wraps the standard library's log/slog with configuration-driven
// setup (level, format, destination) and default attributes (service
// name, version). Components receive a *Logger and typically derive a
// child with a component attribute:
//
//	log := logging.New(cfg.Logging, version)
//	sinkLog := log.With("component", "sink")
//	sinkLog.Warn("write failed", "error", err)
package logging
