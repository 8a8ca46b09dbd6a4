package config

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sys/unix"
)

// Config holds all jseval configuration.
type Config struct {
	Sidecar   SidecarConfig   `yaml:"sidecar" toml:"sidecar"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
}

// SidecarConfig holds sidecar process configuration.
type SidecarConfig struct {
	Executable      string   `envconfig:"JSEVAL_EXECUTABLE" default:"http-eval" yaml:"executable" toml:"executable"`
	Args            []string `envconfig:"JSEVAL_ARGS" yaml:"args" toml:"args"`
	EndpointFlag    string   `envconfig:"JSEVAL_ENDPOINT_FLAG" default:"--udsPath" yaml:"endpoint_flag" toml:"endpoint_flag"`
	SocketName      string   `envconfig:"JSEVAL_SOCKET_NAME" default:"http.sock" yaml:"socket_name" toml:"socket_name"`
	TempPattern     string   `envconfig:"JSEVAL_TEMP_PATTERN" default:"jseval-*" yaml:"temp_pattern" toml:"temp_pattern"`
	ReadyTimeout    Duration `envconfig:"JSEVAL_READY_TIMEOUT" default:"5s" yaml:"ready_timeout" toml:"ready_timeout"`
	ReadyStep       Duration `envconfig:"JSEVAL_READY_STEP" default:"100ms" yaml:"ready_step" toml:"ready_step"`
	TerminateSignal string   `envconfig:"JSEVAL_TERMINATE_SIGNAL" default:"SIGINT" yaml:"terminate_signal" toml:"terminate_signal"`
	KillGrace       Duration `envconfig:"JSEVAL_KILL_GRACE" default:"5s" yaml:"kill_grace" toml:"kill_grace"`
}

// TransportConfig holds sidecar transport configuration.
type TransportConfig struct {
	MaxConns  int     `envconfig:"JSEVAL_MAX_CONNS" default:"64" yaml:"max_conns" toml:"max_conns"`
	RateLimit float64 `envconfig:"JSEVAL_RATE_LIMIT" default:"0" yaml:"rate_limit" toml:"rate_limit"`
	RateBurst int     `envconfig:"JSEVAL_RATE_BURST" default:"1" yaml:"rate_burst" toml:"rate_burst"`
}

// EngineConfig holds settings for the reference sidecar's JavaScript engine.
type EngineConfig struct {
	Console      bool `envconfig:"JSEVAL_ENGINE_CONSOLE" default:"true" yaml:"console" toml:"console"`
	MaxCallStack int  `envconfig:"JSEVAL_ENGINE_MAX_STACK" default:"1024" yaml:"max_call_stack" toml:"max_call_stack"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// Duration is a time.Duration that decodes from strings such as "250ms"
// in environment variables, YAML and TOML alike.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Sidecar: SidecarConfig{
			Executable:      "http-eval",
			EndpointFlag:    "--udsPath",
			SocketName:      "http.sock",
			TempPattern:     "jseval-*",
			ReadyTimeout:    Duration(5 * time.Second),
			ReadyStep:       Duration(100 * time.Millisecond),
			TerminateSignal: "SIGINT",
			KillGrace:       Duration(5 * time.Second),
		},
		Transport: TransportConfig{
			MaxConns:  64,
			RateLimit: 0,
			RateBurst: 1,
		},
		Engine: EngineConfig{
			Console:      true,
			MaxCallStack: 1024,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	s := c.Sidecar
	switch {
	case s.Executable == "":
		return errors.New("config: sidecar executable is empty")
	case s.EndpointFlag == "":
		return errors.New("config: sidecar endpoint flag is empty")
	case s.SocketName == "" || strings.ContainsRune(s.SocketName, '/'):
		return fmt.Errorf("config: invalid socket name %q", s.SocketName)
	case s.ReadyTimeout <= 0:
		return fmt.Errorf("config: ready timeout must be positive, got %s", s.ReadyTimeout.Std())
	case s.ReadyStep <= 0:
		return fmt.Errorf("config: ready step must be positive, got %s", s.ReadyStep.Std())
	case s.KillGrace < 0:
		return fmt.Errorf("config: kill grace must not be negative, got %s", s.KillGrace.Std())
	}
	if _, err := s.Signal(); err != nil {
		return err
	}
	if c.Transport.MaxConns < 0 {
		return fmt.Errorf("config: max conns must not be negative, got %d", c.Transport.MaxConns)
	}
	if c.Transport.RateLimit < 0 {
		return fmt.Errorf("config: rate limit must not be negative, got %v", c.Transport.RateLimit)
	}
	return nil
}

// Signal resolves TerminateSignal ("SIGINT", "INT", "sigterm") to a signal number.
func (s SidecarConfig) Signal() (syscall.Signal, error) {
	name := strings.ToUpper(strings.TrimSpace(s.TerminateSignal))
	if name == "" {
		return unix.SIGINT, nil
	}
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("config: unknown terminate signal %q", s.TerminateSignal)
	}
	return sig, nil
}
