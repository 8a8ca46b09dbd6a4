// Package config provides 12-factor configuration management for jseval.
//
// Configuration is loaded from environment variables with sensible defaults.
// A YAML or TOML file may be layered on top, and CLI flags override both.
//
// Configuration Sections:
//   - Sidecar: executable, endpoint flag, readiness deadline, teardown signal
//   - Transport: connection pool and client-side throttling
//   - Engine: reference sidecar JavaScript engine settings
//   - Logging: Log level and output format
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	fmt.Printf("Spawning %s with %s\n", cfg.Sidecar.Executable, cfg.Sidecar.EndpointFlag)
//
// Environment Variables:
//   - JSEVAL_EXECUTABLE, JSEVAL_ARGS, JSEVAL_ENDPOINT_FLAG, JSEVAL_SOCKET_NAME
//   - JSEVAL_READY_TIMEOUT, JSEVAL_READY_STEP, JSEVAL_TERMINATE_SIGNAL, JSEVAL_KILL_GRACE
//   - JSEVAL_MAX_CONNS, JSEVAL_RATE_LIMIT, JSEVAL_RATE_BURST
//   - JSEVAL_ENGINE_CONSOLE, JSEVAL_ENGINE_MAX_STACK
//   - LOG_LEVEL, LOG_DEV
package config
