// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Library code (the evaluator and its sidecar manager) defaults to a no-op
// logger; binaries build a real one from configuration.
//
// Example Usage:
//
//	logger := logging.NewDevelopment()
//	logger.Info("Sidecar ready", zap.String("endpoint", sock))
//	logger.Error("Failed to spawn sidecar", zap.Error(err))
package logging
