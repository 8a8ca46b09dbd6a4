package config

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Sidecar config
	assert.Equal(t, "http-eval", cfg.Sidecar.Executable)
	assert.Empty(t, cfg.Sidecar.Args)
	assert.Equal(t, "--udsPath", cfg.Sidecar.EndpointFlag)
	assert.Equal(t, "http.sock", cfg.Sidecar.SocketName)
	assert.Equal(t, 5*time.Second, cfg.Sidecar.ReadyTimeout.Std())
	assert.Equal(t, 100*time.Millisecond, cfg.Sidecar.ReadyStep.Std())
	assert.Equal(t, "SIGINT", cfg.Sidecar.TerminateSignal)

	// Transport config
	assert.Equal(t, 64, cfg.Transport.MaxConns)
	assert.Zero(t, cfg.Transport.RateLimit)

	// Engine config
	assert.True(t, cfg.Engine.Console)
	assert.Equal(t, 1024, cfg.Engine.MaxCallStack)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"JSEVAL_EXECUTABLE":       "/opt/bin/http-eval",
		"JSEVAL_ARGS":             "--quiet,--strict",
		"JSEVAL_ENDPOINT_FLAG":    "--socket",
		"JSEVAL_READY_TIMEOUT":    "750ms",
		"JSEVAL_READY_STEP":       "10ms",
		"JSEVAL_TERMINATE_SIGNAL": "TERM",
		"JSEVAL_MAX_CONNS":        "8",
		"JSEVAL_RATE_LIMIT":       "12.5",
		"JSEVAL_ENGINE_CONSOLE":   "false",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/bin/http-eval", cfg.Sidecar.Executable)
	assert.Equal(t, []string{"--quiet", "--strict"}, cfg.Sidecar.Args)
	assert.Equal(t, "--socket", cfg.Sidecar.EndpointFlag)
	assert.Equal(t, 750*time.Millisecond, cfg.Sidecar.ReadyTimeout.Std())
	assert.Equal(t, 10*time.Millisecond, cfg.Sidecar.ReadyStep.Std())
	assert.Equal(t, 8, cfg.Transport.MaxConns)
	assert.Equal(t, 12.5, cfg.Transport.RateLimit)
	assert.False(t, cfg.Engine.Console)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	sig, err := cfg.Sidecar.Signal()
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGTERM, sig)

	// Untouched values keep their defaults
	assert.Equal(t, "http.sock", cfg.Sidecar.SocketName)
	assert.Equal(t, 1024, cfg.Engine.MaxCallStack)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("JSEVAL_READY_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "failed to load config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "empty executable", mutate: func(c *Config) { c.Sidecar.Executable = "" }, wantErr: true},
		{name: "empty endpoint flag", mutate: func(c *Config) { c.Sidecar.EndpointFlag = "" }, wantErr: true},
		{name: "socket name with slash", mutate: func(c *Config) { c.Sidecar.SocketName = "a/b.sock" }, wantErr: true},
		{name: "zero ready timeout", mutate: func(c *Config) { c.Sidecar.ReadyTimeout = 0 }, wantErr: true},
		{name: "zero ready step", mutate: func(c *Config) { c.Sidecar.ReadyStep = 0 }, wantErr: true},
		{name: "negative kill grace", mutate: func(c *Config) { c.Sidecar.KillGrace = Duration(-time.Second) }, wantErr: true},
		{name: "zero kill grace", mutate: func(c *Config) { c.Sidecar.KillGrace = 0 }},
		{name: "unknown signal", mutate: func(c *Config) { c.Sidecar.TerminateSignal = "SIGNOPE" }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Transport.RateLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSignal(t *testing.T) {
	tests := []struct {
		name string
		want syscall.Signal
	}{
		{name: "SIGINT", want: syscall.SIGINT},
		{name: "int", want: syscall.SIGINT},
		{name: "sigterm", want: syscall.SIGTERM},
		{name: "KILL", want: syscall.SIGKILL},
		{name: "", want: syscall.SIGINT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := SidecarConfig{TerminateSignal: tt.name}.Signal()
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "jseval.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
sidecar:
  executable: node-eval
  args: ["--experimental"]
  ready_timeout: 2s
logging:
  level: warn
`), 0o600))

	tomlPath := filepath.Join(dir, "jseval.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[sidecar]
executable = "deno-eval"
kill_grace = "1s"

[transport]
max_conns = 4
`), 0o600))

	cfg, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "node-eval", cfg.Sidecar.Executable)
	assert.Equal(t, []string{"--experimental"}, cfg.Sidecar.Args)
	assert.Equal(t, 2*time.Second, cfg.Sidecar.ReadyTimeout.Std())
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "--udsPath", cfg.Sidecar.EndpointFlag)

	cfg, err = LoadFile(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "deno-eval", cfg.Sidecar.Executable)
	assert.Equal(t, time.Second, cfg.Sidecar.KillGrace.Std())
	assert.Equal(t, 4, cfg.Transport.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Sidecar.ReadyTimeout.Std())
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	jsonPath := filepath.Join(dir, "jseval.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{}`), 0o600))
	_, err = LoadFile(jsonPath)
	assert.ErrorContains(t, err, "unsupported")

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("sidecar:\n  ready_timeout: whenever\n"), 0o600))
	_, err = LoadFile(badPath)
	assert.Error(t, err)

	invalidPath := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalidPath, []byte("[sidecar]\nexecutable = \"\"\n"), 0o600))
	_, err = LoadFile(invalidPath)
	assert.ErrorContains(t, err, "executable")
}
